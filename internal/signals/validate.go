package signals

import (
	"errors"
	"fmt"
	"strings"

	"crypto-signals/internal/model"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrInvalidSignal wraps every validation failure.
var ErrInvalidSignal = errors.New("invalid signal")

// Validate checks a signal submitted over the API: symbol and entry are
// required; direction and pair type must be known values when present.
func Validate(sig model.TelegramSignal) error {
	err := validate.Struct(sig)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidSignal, strings.Join(msgs, "; "))
}
