package model

import (
	"time"

	"github.com/teranos/entres/errors"
)

// Params are free-form matcher parameters. Numbers arrive as float64 from JSON.
type Params map[string]any

// MergeParams layers params left to right; later layers win
func MergeParams(layers ...Params) Params {
	out := Params{}
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}

// Int reads an integer parameter, returning def when absent
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, errors.NewInvalidRequestError("param %q must be an integer, got %v", key, n)
		}
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, errors.NewInvalidRequestError("param %q must be an integer, got %T", key, v)
	}
}

// Float reads a numeric parameter, returning def when absent
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, errors.NewInvalidRequestError("param %q must be a number, got %T", key, v)
	}
}

// String reads a string parameter, returning def when absent
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NewInvalidRequestError("param %q must be a string, got %T", key, v)
	}
	return s, nil
}

// Duration reads a Go duration string ("36h", "90m"), returning def when absent
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	s, err := p.String(key, "")
	if err != nil || s == "" {
		return def, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapInvalidRequest(err, "param "+key)
	}
	return d, nil
}
