package templates

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

const (
	alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	alphabeticChars   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numericChars      = "0123456789"
	symbolChars       = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

type TemplateEngine struct{}

var (
	templateEngineInstance *TemplateEngine
	templateEngineOnce     sync.Once
)

// NewTemplateEngine returns the singleton instance of TemplateEngine
func NewTemplateEngine() *TemplateEngine {
	templateEngineOnce.Do(func() {
		// Register helpers only once during initialization
		RegisterHelpers()
		templateEngineInstance = &TemplateEngine{}
	})
	return templateEngineInstance
}

// RegisterHelpers registers custom Handlebars helpers used in test plans
func RegisterHelpers() {
	// Random string helper, used to make test messages unique per run
	raymond.RegisterHelper("randomValue", func(options *raymond.Options) string {
		randomType := strings.ToUpper(options.HashStr("type"))
		if randomType == "" {
			randomType = "ALPHANUMERIC"
		}

		if randomType == "UUID" {
			return uuid.New().String()
		}

		length := 10
		if lengthVal := options.HashProp("length"); lengthVal != nil {
			length = toInt(lengthVal)
		}

		var result string
		switch randomType {
		case "ALPHABETIC":
			result = generateRandomString(alphabeticChars, length)
		case "NUMERIC":
			result = generateRandomString(numericChars, length)
		case "ALPHANUMERIC_AND_SYMBOLS":
			result = generateRandomString(alphanumericChars+symbolChars, length)
		default:
			result = generateRandomString(alphanumericChars, length)
		}

		if uppercaseVal := options.HashProp("uppercase"); uppercaseVal != nil && raymond.IsTrue(uppercaseVal) {
			result = strings.ToUpper(result)
		}

		return result
	})

	// Random integer helper, bounds via lower/upper hash args
	raymond.RegisterHelper("randomInt", func(options *raymond.Options) string {
		lower := 0
		upper := 100

		if lowerVal := options.HashProp("lower"); lowerVal != nil {
			lower = toInt(lowerVal)
		}
		if upperVal := options.HashProp("upper"); upperVal != nil {
			upper = toInt(upperVal)
		}
		if lower > upper {
			lower, upper = upper, lower
		}

		num, err := rand.Int(rand.Reader, big.NewInt(int64(upper-lower+1)))
		if err != nil {
			return "0"
		}
		return fmt.Sprintf("%d", int(num.Int64())+lower)
	})

	// Current timestamp helper
	raymond.RegisterHelper("now", func(options *raymond.Options) string {
		now := time.Now().UTC()

		switch options.HashStr("format") {
		case "epoch":
			return fmt.Sprintf("%d", now.UnixMilli())
		case "unix":
			return fmt.Sprintf("%d", now.Unix())
		case "date":
			return now.Format("2006-01-02")
		case "time":
			return now.Format("15:04:05")
		default:
			return now.Format(time.RFC3339)
		}
	})

	// Fake natural-language sentence, for free-text messages to the bot
	raymond.RegisterHelper("fakeSentence", func(options *raymond.Options) string {
		words := 5
		if wordsVal := options.HashProp("words"); wordsVal != nil {
			words = toInt(wordsVal)
		}
		return gofakeit.Sentence(words)
	})

	// Fake question, for conversational test cases
	raymond.RegisterHelper("fakeQuestion", func() string {
		return gofakeit.Question()
	})

	// Fake identity fields, keyed like "Name.first_name"
	raymond.RegisterHelper("faker", func(key string) string {
		parts := strings.SplitN(key, ".", 2)
		category := parts[0]
		sub := ""
		if len(parts) > 1 {
			sub = parts[1]
		}

		switch category {
		case "Name":
			switch sub {
			case "first_name":
				return gofakeit.FirstName()
			case "last_name":
				return gofakeit.LastName()
			case "full_name":
				return gofakeit.Name()
			}
		case "Internet":
			switch sub {
			case "email":
				return gofakeit.Email()
			case "username":
				return gofakeit.Username()
			case "url":
				return gofakeit.URL()
			}
		case "Lorem":
			switch sub {
			case "word":
				return gofakeit.Word()
			case "sentence":
				return gofakeit.Sentence(5)
			case "paragraph":
				return gofakeit.Paragraph(1, 3, 5, " ")
			}
		case "Misc":
			switch sub {
			case "uuid":
				return gofakeit.UUID()
			case "boolean":
				return fmt.Sprintf("%t", gofakeit.Bool())
			case "emoji":
				return gofakeit.Emoji()
			}
		}
		return ""
	})
}

// generateRandomString generates a cryptographically secure random string
func generateRandomString(charset string, length int) string {
	result := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return ""
		}
		result[i] = charset[num.Int64()]
	}

	return string(result)
}

func toInt(val interface{}) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var result int
		fmt.Sscanf(v, "%d", &result)
		return result
	default:
		return 0
	}
}
