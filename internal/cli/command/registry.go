package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	credentials := []Field{
		{Name: "username", Prompt: "username", Type: FieldString, Required: true},
		{Name: "password", Prompt: "password", Type: FieldString, Required: true},
	}
	userID := Field{Name: "id", Aliases: []string{"user_id", "userid"}, Prompt: "user_id", Type: FieldInt64, Required: true}
	limit := Field{Name: "limit", Prompt: "limit", Type: FieldInt, Required: false}

	commands := []Command{
		{Service: "system", Action: "health", Method: http.MethodGet, PathTemplate: "/healthz"},
		{Service: "auth", Action: "signup", Method: http.MethodPost, PathTemplate: "/auth/signup", Body: BodyJSON, Fields: credentials},
		{Service: "auth", Action: "login", Method: http.MethodPost, PathTemplate: "/auth/login", Body: BodyJSON, Fields: credentials},
		{Service: "auth", Action: "reset", Method: http.MethodPost, PathTemplate: "/auth/reset-password", Body: BodyJSON, Fields: credentials},
		{
			Service:      "user",
			Action:       "list",
			Method:       http.MethodGet,
			PathTemplate: "/users",
			Body:         BodyQuery,
			Fields: []Field{
				limit,
				{Name: "offset", Prompt: "offset", Type: FieldInt, Required: false},
			},
		},
		{Service: "user", Action: "get", Method: http.MethodGet, PathTemplate: "/users/:id", Fields: []Field{userID}},
		{
			Service:      "user",
			Action:       "create",
			Method:       http.MethodPost,
			PathTemplate: "/users",
			RequiresAuth: true,
			Body:         BodyJSON,
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: false},
				{Name: "rating", Prompt: "rating", Type: FieldFloat, Required: false},
				{Name: "role", Prompt: "role", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "user",
			Action:       "update",
			Method:       http.MethodPut,
			PathTemplate: "/users/:id",
			Body:         BodyJSON,
			Fields: []Field{
				userID,
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "rating", Prompt: "rating", Type: FieldFloat, Required: true},
			},
		},
		{Service: "user", Action: "delete", Method: http.MethodDelete, PathTemplate: "/users/:id", RequiresAuth: true, Fields: []Field{userID}},
		{
			Service:      "user",
			Action:       "profile-image",
			Method:       http.MethodPost,
			PathTemplate: "/users/:id/profile-image",
			Body:         BodyJSON,
			Fields: []Field{
				userID,
				{Name: "image_path", Aliases: []string{"path"}, Prompt: "image_path", Type: FieldString, Required: true},
			},
		},
		{Service: "user", Action: "rating-history", Method: http.MethodGet, PathTemplate: "/users/:id/rating-history", Body: BodyQuery, Fields: []Field{userID, limit}},
		{Service: "user", Action: "submissions", Method: http.MethodGet, PathTemplate: "/users/:id/submissions", Body: BodyQuery, Fields: []Field{userID, limit}},
		{Service: "problem", Action: "list", Method: http.MethodGet, PathTemplate: "/problems"},
		{
			Service:      "problem",
			Action:       "get",
			Method:       http.MethodGet,
			PathTemplate: "/problems/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem_id"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
			},
		},
		{Service: "problem", Action: "seed", Method: http.MethodPost, PathTemplate: "/problems/seed", RequiresAuth: true},
		{
			Service:      "problem",
			Action:       "questions",
			Method:       http.MethodGet,
			PathTemplate: "/questions",
			Body:         BodyQuery,
			Fields: []Field{
				{Name: "level", Prompt: "level", Type: FieldInt, Required: false},
			},
		},
		{
			Service:      "submit",
			Action:       "create",
			Method:       http.MethodPost,
			PathTemplate: "/problems/:id/submit",
			Body:         BodyMultipart,
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem_id", "question_id"}, Prompt: "problem_id", Type: FieldString, Required: true},
				{Name: "file", Aliases: []string{"image", "image_file"}, Prompt: "image file path", Type: FieldFile, Required: true},
				{Name: "user_id", Prompt: "user_id", Type: FieldInt64, Required: false},
			},
		},
		{
			Service:      "submit",
			Action:       "get",
			Method:       http.MethodGet,
			PathTemplate: "/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "upload",
			Action:       "file",
			Method:       http.MethodPost,
			PathTemplate: "/upload",
			Body:         BodyMultipart,
			Fields: []Field{
				{Name: "file", Aliases: []string{"image"}, Prompt: "file path", Type: FieldFile, Required: true},
				{Name: "question_id", Prompt: "question_id", Type: FieldString, Required: false},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, used, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	fields := make([]Field, 0, len(cmd.Fields))
	for _, field := range cmd.Fields {
		if !used[field.Name] {
			fields = append(fields, field)
		}
	}

	spec := RequestSpec{Method: cmd.Method, Path: path, Headers: map[string]string{}}
	switch cmd.Body {
	case BodyJSON:
		payload, err := buildPayload(fields, params)
		if err != nil {
			return RequestSpec{}, err
		}
		spec.Body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
		spec.ContentType = "application/json"
	case BodyMultipart:
		body, contentType, err := buildMultipart(fields, params)
		if err != nil {
			return RequestSpec{}, err
		}
		spec.Body = body
		spec.ContentType = contentType
	case BodyQuery:
		query := url.Values{}
		for _, field := range fields {
			if value := strings.TrimSpace(params.Get(field.Name)); value != "" {
				query.Set(field.Name, value)
			}
		}
		if encoded := query.Encode(); encoded != "" {
			spec.Path += "?" + encoded
		}
	}
	return spec, nil
}

func buildPath(template string, params Params) (string, map[string]bool, error) {
	used := map[string]bool{}
	segments := strings.Split(template, "/")
	for i, segment := range segments {
		if !strings.HasPrefix(segment, ":") {
			continue
		}
		key := strings.TrimPrefix(segment, ":")
		value := strings.TrimSpace(params.Get(key))
		if value == "" {
			return "", nil, fmt.Errorf("missing path parameter: %s", key)
		}
		segments[i] = url.PathEscape(value)
		used[key] = true
	}
	return strings.Join(segments, "/"), used, nil
}

func buildPayload(fields []Field, params Params) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		raw := params.Get(field.Name)
		if raw == "" {
			if field.Required {
				return nil, fmt.Errorf("%s is required", field.Name)
			}
			continue
		}
		switch field.Type {
		case FieldInt, FieldInt64:
			n, err := ParseInt64(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = n
		case FieldFloat:
			f, err := ParseFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = f
		default:
			payload[field.Name] = raw
		}
	}
	return payload, nil
}

func buildMultipart(fields []Field, params Params) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, field := range fields {
		raw := strings.TrimSpace(params.Get(field.Name))
		if raw == "" {
			if field.Required {
				return nil, "", fmt.Errorf("%s is required", field.Name)
			}
			continue
		}
		if field.Type != FieldFile {
			if field.Type == FieldInt64 {
				if _, err := ParseInt64(raw); err != nil {
					return nil, "", fmt.Errorf("invalid %s: %w", field.Name, err)
				}
			}
			if err := writer.WriteField(field.Name, raw); err != nil {
				return nil, "", fmt.Errorf("write form field failed: %w", err)
			}
			continue
		}
		data, err := ReadFile(raw)
		if err != nil {
			return nil, "", err
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field.Name, filepath.Base(raw)))
		header.Set("Content-Type", http.DetectContentType(data))
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create form file failed: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("write form file failed: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer failed: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
