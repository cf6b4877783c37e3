// Package validation checks user input against JSON schemas.
//
// The schemas live in schemas/*.json and are compiled once by New. Callers
// get *apperror.AppError values wrapping apperror.ErrValidation, with Field
// set to the first offending property.
package validation

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qri-io/jsonschema"
	"github.com/sakif/skillbarter/internal/apperror"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	profile *jsonschema.Schema
	rating  *jsonschema.Schema
	account *jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	v := &Validator{}
	for name, dst := range map[string]**jsonschema.Schema{
		"profile.json": &v.profile,
		"rating.json":  &v.rating,
		"account.json": &v.account,
	} {
		raw, err := schemaFiles.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("validation: reading %s: %w", name, err)
		}
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal(raw, rs); err != nil {
			return nil, fmt.Errorf("validation: compiling %s: %w", name, err)
		}
		*dst = rs
	}
	return v, nil
}

// ProfileChanges validates a sanitized profile change-set: attribute names,
// email format, numeric coordinates and value lengths.
func (v *Validator) ProfileChanges(ctx context.Context, changes map[string]string) error {
	return validate(ctx, v.profile, changes)
}

// Rating parses raw as a rating and checks it is an integer in [1, 5].
func (v *Validator) Rating(ctx context.Context, raw string) (int, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, apperror.ValidationFailed("rating", "rating must be a number")
	}
	if err := validate(ctx, v.rating, map[string]float64{"rating": n}); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Account checks the sign-up fields. Empty arguments are skipped, so the
// password-reset form can check just the password.
func (v *Validator) Account(ctx context.Context, username, email, password string) error {
	doc := map[string]string{}
	if username != "" {
		doc["username"] = username
	}
	if email != "" {
		doc["email"] = email
	}
	if password != "" {
		doc["password"] = password
	}
	return validate(ctx, v.account, doc)
}

func validate(ctx context.Context, schema *jsonschema.Schema, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("validation: encoding document: %w", err)
	}

	verrs, err := schema.ValidateBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("validation: running schema: %w", err)
	}
	if len(verrs) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(verrs))
	for _, ke := range verrs {
		msgs = append(msgs, describe(ke))
	}
	return apperror.ValidationFailed(field(verrs[0].PropertyPath), strings.Join(msgs, "; "))
}

func describe(ke jsonschema.KeyError) string {
	if f := field(ke.PropertyPath); f != "" {
		return f + ": " + ke.Message
	}
	return ke.Message
}

// field turns a JSON pointer such as "/email" into "email".
func field(path string) string {
	return strings.TrimPrefix(path, "/")
}
