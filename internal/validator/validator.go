package validator

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/praxislearn/praxis-cli/internal/model"
)

// validate is the singleton validator instance.
var validate *govalidator.Validate

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Setup builds the validator with English translations and the evaluation
// struct-level rules. Call once during application startup.
func Setup() {
	validate = govalidator.New()

	// Use JSON tag name for field names in error messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register English translations.
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, trans)

	validate.RegisterStructValidation(mixedEvaluationRules, model.MixedEvaluationRequest{})
	validate.RegisterStructValidation(submissionRules, model.EvaluationSubmission{})
}

// mixedEvaluationRules enforces the cross-field constraints a tag cannot
// express: the MCQ/open weights must sum to 1.0 and a positioning request
// must carry its per-module topic map.
func mixedEvaluationRules(sl govalidator.StructLevel) {
	req := sl.Current().Interface().(model.MixedEvaluationRequest)

	if math.Abs(req.MCQWeight+req.OpenWeight-1.0) > 0.001 {
		sl.ReportError(req.MCQWeight, "mcq_weight", "MCQWeight", "weightsum", "")
	}
	if req.IsPositioning && len(req.ModulesTopics) == 0 {
		sl.ReportError(req.ModulesTopics, "modules_topics", "ModulesTopics", "required_if_positioning", "")
	}
}

// submissionRules rejects a submission whose responses do not align
// positionally with its questions.
func submissionRules(sl govalidator.StructLevel) {
	sub := sl.Current().Interface().(model.EvaluationSubmission)

	if len(sub.Responses) != len(sub.Questions) {
		sl.ReportError(sub.Responses, "responses", "Responses", "eqlen_questions", "")
	}
}

// Struct validates v and returns nil or a translated field error map.
func Struct(v any) map[string]string {
	if validate == nil {
		Setup()
	}
	if err := validate.Struct(v); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// TranslateErrors takes a validation error and returns a map of field name →
// human-readable error message. If the error is not a validation error, it
// returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			switch fe.Tag() {
			case "weightsum":
				fields[fe.Field()] = "MCQ weight and open weight must sum to 1.0"
			case "required_if_positioning":
				fields[fe.Field()] = "modules_topics is required for a positioning evaluation"
			case "eqlen_questions":
				fields[fe.Field()] = "responses must align one-to-one with questions"
			default:
				fields[fe.Field()] = fe.Translate(trans)
			}
		}
		return fields
	}

	// Not a validation error.
	fields["detail"] = err.Error()
	return fields
}
