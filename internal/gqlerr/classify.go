package gqlerr

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Storage wraps err from a storage call and classifies known MySQL error
// numbers. Typed errors pass through unchanged.
func Storage(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidationError(err) || IsAuthorizationError(err) || IsStorageError(err) {
		return err
	}
	se := &StorageError{Op: op, Entity: entity, Err: err}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		se.Number = myErr.Number
		se.Code = mysqlCode(myErr.Number)
	}
	return se
}

func mysqlCode(number uint16) string {
	switch number {
	case 1062:
		return CodeUniqueViolation
	case 1451, 1452:
		return CodeForeignKeyViolation
	case 1048, 1364:
		return CodeNotNullViolation
	case 1044, 1142, 1143:
		return CodeAccessDenied
	default:
		return CodeStorage
	}
}

// Rule enriches errors whose message contains Match.
type Rule struct {
	Match  string                 `mapstructure:"match"`
	Fields map[string]interface{} `mapstructure:"fields"`
}

// DefaultRules maps connection timeouts to a 503 status.
func DefaultRules() []Rule {
	return []Rule{
		{Match: "ETIMEDOUT", Fields: map[string]interface{}{"statusCode": 503}},
	}
}

// Classifier applies the first matching rule to an error.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier; rule order is significant.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify returns err enriched with the fields of the first matching rule,
// or err unchanged when nothing matches. Classified errors are not
// classified again.
func (c *Classifier) Classify(err error) error {
	if c == nil || err == nil {
		return err
	}
	var already *ClassifiedError
	if errors.As(err, &already) {
		return err
	}
	msg := err.Error()
	for _, rule := range c.rules {
		if rule.Match != "" && strings.Contains(msg, rule.Match) {
			return &ClassifiedError{Err: err, Fields: rule.Fields}
		}
	}
	return err
}

// ClassifiedError carries extra extension fields from a classifier rule.
type ClassifiedError struct {
	Err    error
	Fields map[string]interface{}
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Extensions merges the wrapped error's extensions with the rule fields.
func (e *ClassifiedError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{}
	var inner interface{ Extensions() map[string]interface{} }
	if errors.As(e.Err, &inner) {
		for k, v := range inner.Extensions() {
			ext[k] = v
		}
	}
	for k, v := range e.Fields {
		ext[k] = v
	}
	return ext
}
