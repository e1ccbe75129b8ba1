package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	domainbooking "divineconnect/internal/domain/booking"
	"divineconnect/internal/domain/slots"
)

// Validator checks struct tags on commands and queries and reports failures as a
// booking.ValidationError keyed by json field names.
type Validator struct {
	validate *validator.Validate
}

func New() (*Validator, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return toSnake(f.Name)
		}
		return name
	})
	if err := v.RegisterValidation("slot_label", validateSlotLabel); err != nil {
		return nil, fmt.Errorf("register slot_label: %w", err)
	}
	return &Validator{validate: v}, nil
}

func validateSlotLabel(fl validator.FieldLevel) bool {
	_, err := slots.NormalizeLabel(fl.Field().String())
	return err == nil
}

func (v *Validator) Validate(ctx context.Context, message any) error {
	if message == nil {
		return nil
	}
	val := reflect.ValueOf(message)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	err := v.validate.StructCtx(ctx, val.Interface())
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &domainbooking.ValidationError{}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, domainbooking.FieldError{Field: fieldPath(fe), Message: describe(fe)})
	}
	return out
}

// fieldPath drops the command type prefix: "CreateBookingCommand.request.date" -> "request.date".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "datetime":
		return "must be a date like 2025-03-10"
	case "slot_label":
		return "must be a time like 6:00 AM"
	case "e164":
		return "must be a phone number in international format"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// toSnake names untagged fields: BookingID -> booking_id.
func toSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
