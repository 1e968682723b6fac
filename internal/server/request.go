package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/valyala/fastjson"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// errBadRequest marks request bodies rejected before they reach the engine.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// readBody reads a JSON object body. The caller must return p to the pool.
func (s *RuleServer) readBody(r *http.Request, p *fastjson.Parser) (*fastjson.Value, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	defer r.Body.Close()

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, badRequest("request body is required")
	}

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, badRequest("invalid JSON: %v", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, badRequest("request body must be a JSON object")
	}
	return v, nil
}

// stringField returns a required string member of v.
func stringField(v *fastjson.Value, key string) (string, error) {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return "", badRequest("%s is required", key)
	}
	b, err := f.StringBytes()
	if err != nil {
		return "", badRequest("%s must be a string", key)
	}
	return string(b), nil
}

// idValue accepts an integer id as a JSON number or a numeric string.
func idValue(v *fastjson.Value, key string) (int64, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		return 0, badRequest("%s is required", key)
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		f, _ := v.Float64()
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, badRequest("%s must be an integer", key)
		}
		return int64(f), nil
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		id, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, badRequest("%s must be an integer", key)
		}
		return id, nil
	default:
		return 0, badRequest("%s must be an integer", key)
	}
}

// idList reads an array of ids.
func idList(v *fastjson.Value, key string) ([]int64, error) {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return nil, badRequest("%s is required", key)
	}
	arr, err := f.Array()
	if err != nil {
		return nil, badRequest("%s must be an array", key)
	}
	ids := make([]int64, 0, len(arr))
	for i, el := range arr {
		id, err := idValue(el, fmt.Sprintf("%s[%d]", key, i))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// tupleValue builds a record from a JSON object. Numbers and strings keep
// their JSON type; absent and null fields are missing; unknown fields are ignored.
func tupleValue(v *fastjson.Value, key string) (ruleql.Tuple, error) {
	var t ruleql.Tuple

	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return t, badRequest("%s is required", key)
	}
	obj, err := f.Object()
	if err != nil {
		return t, badRequest("%s must be an object", key)
	}

	for _, name := range ruleql.Fields {
		field := obj.Get(name)
		if field == nil {
			continue
		}
		var val ruleql.Value
		switch field.Type() {
		case fastjson.TypeNull:
			continue
		case fastjson.TypeNumber:
			n, _ := field.Float64()
			val = ruleql.NumberValue(n)
		case fastjson.TypeString:
			b, _ := field.StringBytes()
			val = ruleql.StringValue(string(b))
		default:
			return t, badRequest("%s.%s must be a number or a string", key, name)
		}
		if err := t.Set(name, val); err != nil {
			return t, err
		}
	}
	return t, nil
}
