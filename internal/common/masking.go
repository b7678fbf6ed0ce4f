package common

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// MaskedValue replaces any value considered sensitive.
const MaskedValue = "***MASKED***"

// SensitivePattern represents a pattern to detect and mask sensitive information
type SensitivePattern struct {
	Name        string         // Pattern name (e.g., "password", "dsn_password")
	Regex       *regexp.Regexp // Regular expression to match sensitive data
	Replacement string         // Replacement string
	Keys        []string       // Specific keys to mask (case-insensitive)
}

// DefaultSensitivePatterns covers the secrets that show up in migration logs:
// credentials embedded in connection strings and key=value secrets.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "url_password",
		Regex:       regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://[^:/@\s]+:)([^@\s]+)(@)`),
		Replacement: "${1}" + MaskedValue + "${3}",
	},
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)\b(password|passwd|pwd)(\s*[:=]\s*)([^\s&;,]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)\b(secret|client[_-]?secret|secret[_-]?access[_-]?key)(\s*[:=]\s*)([^\s&;,]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"secret", "client_secret", "client-secret", "secret_access_key"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)\b(token|access[_-]?token|session[_-]?token)(\s*[:=]\s*)([^\s&;,]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"token", "access_token", "session_token"},
	},
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + MaskedValue,
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  atomic.Bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return NewMaskerWithPatterns(DefaultSensitivePatterns)
}

// NewMaskerWithPatterns creates a new masker with custom patterns
func NewMaskerWithPatterns(patterns []SensitivePattern) *Masker {
	m := &Masker{patterns: patterns}
	m.enabled.Store(true)
	return m
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled.Load()
}

// AddPattern adds a new sensitive pattern. A pattern with keys but no regex gets
// a key=value regex built from its keys.
func (m *Masker) AddPattern(pattern SensitivePattern) {
	if pattern.Regex == nil && len(pattern.Keys) > 0 {
		keyPattern := strings.Join(pattern.Keys, "|")
		pattern.Regex = regexp.MustCompile(fmt.Sprintf(`(?i)\b(%s)(\s*[:=]\s*)([^\s&;,]+)`, keyPattern))
		if pattern.Replacement == "" {
			pattern.Replacement = "${1}${2}" + MaskedValue
		}
	}
	m.patterns = append(m.patterns, pattern)
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.IsEnabled() {
		return input
	}

	result := input
	for _, pattern := range m.patterns {
		if pattern.Regex == nil {
			continue
		}
		result = pattern.Regex.ReplaceAllString(result, pattern.Replacement)
	}
	return result
}

// MaskValue masks sensitive information based on key-value context
func (m *Masker) MaskValue(key string, value interface{}) interface{} {
	if !m.IsEnabled() {
		return value
	}

	lowerKey := strings.ToLower(key)
	for _, pattern := range m.patterns {
		for _, sensitiveKey := range pattern.Keys {
			if lowerKey == strings.ToLower(sensitiveKey) {
				return MaskedValue
			}
		}
	}

	switch v := value.(type) {
	case string:
		return m.MaskString(v)
	case error:
		return m.MaskString(v.Error())
	default:
		return value
	}
}

var globalMasker atomic.Pointer[Masker]

func init() {
	globalMasker.Store(NewMasker())
}

// SetGlobalMasker sets the global masker instance
func SetGlobalMasker(masker *Masker) {
	if masker != nil {
		globalMasker.Store(masker)
	}
}

// GetGlobalMasker returns the global masker instance
func GetGlobalMasker() *Masker {
	return globalMasker.Load()
}

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string {
	return GetGlobalMasker().MaskString(input)
}

// EnableMasking enables/disables global masking
func EnableMasking(enabled bool) {
	GetGlobalMasker().SetEnabled(enabled)
}

// IsMaskingEnabled returns whether global masking is enabled
func IsMaskingEnabled() bool {
	return GetGlobalMasker().IsEnabled()
}
