package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/vitals/internal/domain"
)

// ErrDegraded: возможность есть, но работает в урезанном режиме (partial, а не fail)
var ErrDegraded = errors.New("degraded")

// Condition: одно под-условие категории
type Condition struct {
	Name     string
	Optional bool // провал дает partial, а не fail
	Test     func(ctx context.Context) error
}

// Outcome вердикт проверки категории
type Outcome struct {
	Status  domain.CheckStatus
	Details string
}

func Pass() Outcome { return Outcome{Status: domain.StatusPass} }

func Failed(format string, args ...interface{}) Outcome {
	return Outcome{Status: domain.StatusFail, Details: fmt.Sprintf(format, args...)}
}

// Evaluate прогоняет под-условия по порядку. Каждое изолировано: паника или ошибка
// одного не мешает остальным. pass: все выполнены; partial, провалились только
// необязательные (или вернули ErrDegraded); fail: провалено обязательное.
// В details перечислены все провалы.
func Evaluate(ctx context.Context, conds ...Condition) Outcome {
	var failed, degraded []string

	for _, c := range conds {
		err := safeTest(ctx, c)
		if err == nil {
			continue
		}
		line := fmt.Sprintf("%s: %v", c.Name, err)
		if c.Optional || errors.Is(err, ErrDegraded) {
			degraded = append(degraded, line)
		} else {
			failed = append(failed, line)
		}
	}

	switch {
	case len(failed) > 0:
		return Outcome{Status: domain.StatusFail, Details: strings.Join(append(failed, degraded...), "; ")}
	case len(degraded) > 0:
		return Outcome{Status: domain.StatusPartial, Details: strings.Join(degraded, "; ")}
	default:
		return Pass()
	}
}

func safeTest(ctx context.Context, c Condition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Test(ctx)
}
