package session

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// IsTokenExpired 判断凭证是否过期
// 只解码 JWT 载荷，不校验签名，也不看头部的 alg。当前时间（毫秒）>= exp*1000 视为过期；
// 无法解码的凭证一律视为过期。载荷中没有 exp 时视为未过期，
// exp 为 null 或非数值时视为过期。
func IsTokenExpired(token string, now time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return true
	}
	payload, err := jwt.DecodeSegment(parts[1])
	if err != nil {
		return true
	}

	claims := jwt.MapClaims{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return true
	}

	raw, ok := claims["exp"]
	if !ok {
		return false
	}

	var exp float64
	switch v := raw.(type) {
	case float64:
		exp = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return true
		}
		exp = f
	default:
		return true
	}

	return float64(now.UnixMilli()) >= exp*1000
}
