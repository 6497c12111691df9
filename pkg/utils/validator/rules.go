package validator

import (
	"net"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags
const (
	TagHTTPURL      = "httpurl"      // absolute http(s) URL with a host
	TagListenAddr   = "listenaddr"   // host:port, host may be empty
	TagNoWhitespace = "nowhitespace" // no whitespace characters
	TagTrimmed      = "trimmed"      // no leading/trailing spaces
)

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagHTTPURL, validateHTTPURL)
	_ = v.validate.RegisterValidation(TagListenAddr, validateListenAddr)
	_ = v.validate.RegisterValidation(TagNoWhitespace, validateNoWhitespace)
	_ = v.validate.RegisterValidation(TagTrimmed, validateTrimmed)
}

func validateHTTPURL(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true // use required for mandatory
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateListenAddr(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, port, err := net.SplitHostPort(s)
	return err == nil && port != ""
}

func validateNoWhitespace(fl validator.FieldLevel) bool {
	return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
}

func validateTrimmed(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == strings.TrimSpace(s)
}
