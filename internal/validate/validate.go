// Package validate 登录与注册表单的本地校验
// 校验失败的表单不会发出任何网络请求
package validate

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// 自定义校验标签
const (
	noMailboxAtTag = "nomailboxat"
	acceptedTag    = "accepted"
)

var customMessages = map[string]map[string]string{
	"zh": {
		noMailboxAtTag: "{0}不能包含 @，只需填写邮箱用户名",
		acceptedTag:    "必须同意服务条款",
	},
	"en": {
		noMailboxAtTag: "{0} must not contain @, enter the mailbox name only",
		acceptedTag:    "terms and conditions must be accepted",
	},
}

// ValidationErrors 字段名到错误信息的映射
type ValidationErrors map[string]string

func (ve ValidationErrors) Error() string {
	fields := make([]string, 0, len(ve))
	for field := range ve {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, ve[field])
	}
	return strings.Join(msgs, "; ")
}

// IsValidationError 判断错误是否为表单校验错误
func IsValidationError(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}

// LoginForm 登录表单
type LoginForm struct {
	Email    string `json:"correo" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterForm 注册表单
// Mailbox 只填写邮箱用户名，域名由 Email 拼接
type RegisterForm struct {
	Name        string `json:"nombre" validate:"required"`
	LastName    string `json:"apellidos"`
	Mailbox     string `json:"correo" validate:"required,nomailboxat"`
	Password    string `json:"password" validate:"required,min=6"`
	Confirm     string `json:"confirmarPassword" validate:"required,eqfield=Password"`
	AcceptTerms bool   `json:"aceptaTerminos" validate:"accepted"`
}

// Email 返回规范化后的完整邮箱: 去空白、转小写并拼接域名
func (f RegisterForm) Email(domain string) string {
	return strings.ToLower(strings.TrimSpace(f.Mailbox)) + "@" + domain
}

// Validator 基于 go-playground/validator 的表单校验器
type Validator struct {
	core  *validator.Validate
	trans ut.Translator
}

// New 创建校验器
// 参数:
//
//	locale: 错误信息语言，"zh" 或 "en"，未知值回退为 zh
func New(locale string) *Validator {
	enLocale := en.New()
	zhLocale := zh.New()
	uni := ut.New(zhLocale, zhLocale, enLocale)

	if locale != "en" {
		locale = "zh"
	}
	trans, _ := uni.GetTranslator(locale)

	validate := validator.New()
	if locale == "en" {
		_ = en_translations.RegisterDefaultTranslations(validate, trans)
	} else {
		_ = zh_translations.RegisterDefaultTranslations(validate, trans)
	}

	// 使用 JSON 字段名作为错误中的字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(noMailboxAtTag, noMailboxAtValidation)
	_ = validate.RegisterValidation(acceptedTag, acceptedValidation)

	v := &Validator{core: validate, trans: trans}
	v.registerCustomTranslations(customMessages[locale])
	return v
}

// registerCustomTranslations 为自定义标签注册错误信息
func (v *Validator) registerCustomTranslations(messages map[string]string) {
	for tag, text := range messages {
		tag, text := tag, text
		_ = v.core.RegisterTranslation(tag, v.trans,
			func(trans ut.Translator) error {
				return trans.Add(tag, text, true)
			},
			func(trans ut.Translator, fe validator.FieldError) string {
				msg, err := trans.T(tag, fe.Field())
				if err != nil {
					return fe.Error()
				}
				return msg
			})
	}
}

// Struct 校验结构体，失败时返回 ValidationErrors
func (v *Validator) Struct(s interface{}) error {
	err := v.core.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	result := make(ValidationErrors, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, exists := result[fe.Field()]; exists {
			continue
		}
		result[fe.Field()] = fe.Translate(v.trans)
	}
	return result
}

// Login 校验登录表单
func (v *Validator) Login(form LoginForm) error {
	return v.Struct(form)
}

// Register 校验注册表单
func (v *Validator) Register(form RegisterForm) error {
	return v.Struct(form)
}

func noMailboxAtValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return !strings.Contains(str, "@")
	}
	return false
}

func acceptedValidation(fl validator.FieldLevel) bool {
	if accepted, ok := fl.Field().Interface().(bool); ok {
		return accepted
	}
	return false
}
