package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	errorSchemaRef    = "#/components/schemas/ErrorResponse"
	schemaRefPrefix   = "#/components/schemas/"
	responseRefPrefix = "#/components/responses/"
)

// routes served by services/study/internal/server.
var routes = map[string][]string{
	"/healthz":                         {http.MethodGet},
	"/metrics":                         {http.MethodGet},
	"/api/generate-flashcards":         {http.MethodPost},
	"/api/generate-quiz":               {http.MethodPost},
	"/api/process-document":            {http.MethodPost},
	"/api/documents":                   {http.MethodGet, http.MethodPost},
	"/api/documents/{id}/url":          {http.MethodGet},
	"/api/jobs/{id}":                   {http.MethodGet},
	"/api/flashcards":                  {http.MethodGet},
	"/api/quizzes":                     {http.MethodGet},
	"/api/quizzes/{id}":                {http.MethodGet},
	"/api/quizzes/{id}/results":        {http.MethodPost},
	"/api/chat":                        {http.MethodPost},
	"/api/conversations":               {http.MethodGet},
	"/api/conversations/{id}/messages": {http.MethodGet},
	"/api/progress":                    {http.MethodGet},
}

var publicRoutes = map[string]bool{"/healthz": true, "/metrics": true}

type openAPIDoc struct {
	Security   []map[string][]string           `yaml:"security"`
	Paths      map[string]map[string]operation `yaml:"paths"`
	Components struct {
		Schemas         map[string]schema   `yaml:"schemas"`
		Responses       map[string]response `yaml:"responses"`
		SecuritySchemes map[string]any      `yaml:"securitySchemes"`
	} `yaml:"components"`
}

type operation struct {
	Security  *[]map[string][]string `yaml:"security"`
	Responses map[string]response    `yaml:"responses"`
}

type response struct {
	Ref         string               `yaml:"$ref"`
	Description string               `yaml:"description"`
	Content     map[string]mediaType `yaml:"content"`
}

type mediaType struct {
	Schema schema `yaml:"schema"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if errs := checkDoc(doc); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(1)
	}
	fmt.Println("OpenAPI check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkDoc(doc openAPIDoc) []error {
	var errs []error
	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return []error{err}
	}
	if err := validateErrorResponse(errSchema); err != nil {
		errs = append(errs, err)
	}
	if _, ok := doc.Components.SecuritySchemes["bearerAuth"]; !ok {
		errs = append(errs, errors.New("components.securitySchemes.bearerAuth missing"))
	}
	if !requiresBearer(doc.Security) {
		errs = append(errs, errors.New("top-level security must require bearerAuth"))
	}
	for name, resp := range doc.Components.Responses {
		if !resp.refsErrorSchema() {
			errs = append(errs, fmt.Errorf("components.responses.%s must use ErrorResponse", name))
		}
	}
	for _, path := range sortedKeys(routes) {
		ops, ok := doc.Paths[path]
		if !ok {
			errs = append(errs, fmt.Errorf("path %s missing", path))
			continue
		}
		for _, method := range routes[path] {
			op, ok := ops[strings.ToLower(method)]
			if !ok {
				errs = append(errs, fmt.Errorf("%s %s missing", method, path))
				continue
			}
			errs = append(errs, checkOperation(doc, method+" "+path, publicRoutes[path], op)...)
		}
	}
	for _, path := range sortedKeys(doc.Paths) {
		if _, ok := routes[path]; !ok {
			errs = append(errs, fmt.Errorf("path %s is documented but not served", path))
		}
	}
	return errs
}

func checkOperation(doc openAPIDoc, name string, public bool, op operation) []error {
	var errs []error
	if public && (op.Security == nil || len(*op.Security) != 0) {
		errs = append(errs, fmt.Errorf("%s is public and must set security: []", name))
	}
	if !public && op.Security != nil && !requiresBearer(*op.Security) {
		errs = append(errs, fmt.Errorf("%s must not drop bearerAuth", name))
	}
	if len(op.Responses) == 0 {
		errs = append(errs, fmt.Errorf("%s has no responses", name))
	}
	if !public {
		if _, ok := op.Responses["401"]; !ok {
			errs = append(errs, fmt.Errorf("%s must document 401", name))
		}
	}
	for code, resp := range op.Responses {
		status, err := strconv.Atoi(code)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s response %q is not a status code", name, code))
			continue
		}
		if resp.Ref != "" {
			target := strings.TrimPrefix(resp.Ref, responseRefPrefix)
			if _, ok := doc.Components.Responses[target]; !ok || target == resp.Ref {
				errs = append(errs, fmt.Errorf("%s response %s references unknown %s", name, code, resp.Ref))
			}
			continue
		}
		if status >= 400 && !resp.refsErrorSchema() {
			errs = append(errs, fmt.Errorf("%s response %s must use ErrorResponse", name, code))
		}
		for _, media := range resp.Content {
			if err := checkRefs(doc, media.Schema); err != nil {
				errs = append(errs, fmt.Errorf("%s response %s: %w", name, code, err))
			}
		}
	}
	return errs
}

func (r response) refsErrorSchema() bool {
	media, ok := r.Content["application/json"]
	return ok && strings.TrimSpace(media.Schema.Ref) == errorSchemaRef
}

func checkRefs(doc openAPIDoc, s schema) error {
	if s.Ref != "" {
		if _, err := getSchema(doc, strings.TrimPrefix(s.Ref, schemaRefPrefix)); err != nil {
			return fmt.Errorf("unresolved %s", s.Ref)
		}
	}
	if s.Items != nil {
		if err := checkRefs(doc, *s.Items); err != nil {
			return err
		}
	}
	for _, prop := range s.Properties {
		if err := checkRefs(doc, prop); err != nil {
			return err
		}
	}
	return nil
}

func requiresBearer(reqs []map[string][]string) bool {
	for _, req := range reqs {
		if _, ok := req["bearerAuth"]; ok {
			return true
		}
	}
	return false
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	if !makeSet(s.Required)["error"] {
		return errors.New(`ErrorResponse.required must include "error"`)
	}
	errorProp, ok := s.Properties["error"]
	if !ok || errorProp.Type != "string" {
		return errors.New("ErrorResponse.error must be string")
	}
	if countProp, ok := s.Properties["flashcardsCount"]; ok && countProp.Type != "integer" {
		return errors.New("ErrorResponse.flashcardsCount must be integer")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
