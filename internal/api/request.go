package api

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"hue-gateway/internal/domain"
)

// maxBodyBytes bounds a request body. Notebooks carry every snippet's
// statement, so this is generous.
const maxBodyBytes = 8 << 20

// callArgs are the arguments of a notebook API call. Browsers post them as
// form fields holding JSON documents; other clients send a JSON object.
type callArgs struct {
	notebook *domain.Notebook
	snippet  *domain.Snippet
	params   map[string]string
}

// parseCall decodes the request. A missing snippet is a validation error
// when needSnippet is set.
func parseCall(w http.ResponseWriter, r *http.Request, needSnippet bool) (*callArgs, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	fields, err := readFields(r)
	if err != nil {
		return nil, err
	}

	args := &callArgs{notebook: &domain.Notebook{}, params: make(map[string]string)}
	for key, raw := range fields {
		switch key {
		case "notebook":
			if err := decodeDocument(raw, args.notebook); err != nil {
				return nil, domain.ErrValidation("invalid notebook: %v", err)
			}
		case "snippet":
			args.snippet = &domain.Snippet{}
			if err := decodeDocument(raw, args.snippet); err != nil {
				return nil, domain.ErrValidation("invalid snippet: %v", err)
			}
		default:
			args.params[key] = scalar(raw)
		}
	}
	if needSnippet && args.snippet == nil {
		return nil, domain.ErrValidation("snippet is required")
	}
	return args, nil
}

func readFields(r *http.Request) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			return nil, domain.ErrValidation("invalid request body: %v", err)
		}
		return fields, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, domain.ErrValidation("invalid form: %v", err)
	}
	for key := range r.PostForm {
		fields[key] = json.RawMessage(strconv.Quote(r.PostForm.Get(key)))
	}
	return fields, nil
}

// decodeDocument accepts a JSON object or a string holding one.
func decodeDocument(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = json.RawMessage(s)
	}
	return json.Unmarshal(raw, dst)
}

// scalar renders a JSON value as the string a form would have carried.
func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func (a *callArgs) intParam(key string, def int) (int, error) {
	v, ok := a.params[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.ErrValidation("%s must be an integer", key)
	}
	return n, nil
}

func (a *callArgs) boolParam(key string, def bool) (bool, error) {
	v, ok := a.params[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, domain.ErrValidation("%s must be true or false", key)
	}
	return b, nil
}
