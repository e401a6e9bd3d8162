package platform

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"devschool-client/internal/course"
)

// ListUsers GET usuarios
func (c *Client) ListUsers(ctx context.Context) ([]course.User, error) {
	var out []course.User
	if err := c.do(ctx, http.MethodGet, "usuarios", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser GET usuarios/{id}
func (c *Client) GetUser(ctx context.Context, id int64) (*course.User, error) {
	var out course.User
	if err := c.do(ctx, http.MethodGet, "usuarios/"+strconv.FormatInt(id, 10), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindUserByEmail 拉取用户列表后在本地按邮箱查找，未找到返回 nil
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*course.User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, nil
}
