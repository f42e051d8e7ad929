// Package contact 描述首页联系表单的提交约定：字段校验通过后在新窗口打开预约链接，
// 服务端不接收表单内容。
package contact

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// BlankTarget 是打开预约页时使用的窗口目标。
const BlankTarget = "_blank"

// Form 对应联系表单的五个字段，只有 Name 与 Email 受约束。
type Form struct {
	Name        string `json:"name" validate:"required"`
	Company     string `json:"company,omitempty"`
	Country     string `json:"country,omitempty"`
	Email       string `json:"email" validate:"required,email"`
	Description string `json:"description,omitempty"`
}

var fieldMessages = map[string]string{
	"Name":  "Name is required",
	"Email": "Valid email is required",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidationErrors 保存 字段(json 名) → 提示文案。
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, v[key]))
	}
	return "invalid contact form: " + strings.Join(parts, "; ")
}

// Validate 返回 nil 或 ValidationErrors。
func (f Form) Validate() error {
	err := formValidator().Struct(f)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := ValidationErrors{}
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.StructField()]
		if !ok {
			msg = fmt.Sprintf("%s is invalid", fe.StructField())
		}
		out[strings.ToLower(fe.StructField())] = msg
	}
	return out
}

// Opener 抽象浏览器的 window.open。
type Opener interface {
	Open(url, target string) error
}

// OpenerFunc 让普通函数满足 Opener。
type OpenerFunc func(url, target string) error

// Open 调用 f 本身。
func (f OpenerFunc) Open(url, target string) error {
	return f(url, target)
}

// Scheduler 持有固定的预约链接。
type Scheduler struct {
	url string
}

// NewScheduler 校验链接必须为带 host 的 http(s) 地址。
func NewScheduler(raw string) (*Scheduler, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduling url %q: %w", raw, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("scheduling url must be http(s) with host: %q", raw)
	}
	return &Scheduler{url: raw}, nil
}

// URL 返回预约链接。
func (s *Scheduler) URL() string {
	return s.url
}

// Submit 校验表单，成功时以 _blank 打开预约链接一次并返回该链接。
// 表单内容不会拼接到链接上。
func (s *Scheduler) Submit(form Form, opener Opener) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}
	if opener == nil {
		return "", errors.New("opener is required")
	}
	if err := opener.Open(s.url, BlankTarget); err != nil {
		return "", fmt.Errorf("open scheduling link: %w", err)
	}
	return s.url, nil
}
