package recovery

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// retryInterval минимальный промежуток между ручными повторами
const retryInterval = 10 * time.Second

// fallbackPage: безопасный режим без внешних зависимостей (ни скриптов, ни стилей извне)
const fallbackPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Safe mode</title>
<style>
body{font-family:sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#222}
button{padding:.5rem 1.5rem;font-size:1rem}
</style>
</head>
<body>
<h1>Something went wrong</h1>
<p>Monitoring could not recover automatically. You can try to restart it.</p>
<form method="post" action="/fallback/retry">
<button type="submit">Retry</button>
</form>
</body>
</html>
`

// ShowFallbackInterface пишет минимальную страницу безопасного режима
func ShowFallbackInterface(w io.Writer) error {
	_, err := io.WriteString(w, fallbackPage)
	return err
}

// FallbackHandler GET: страница, POST: ручной повтор через retry.
// Повторы идут по одному и не чаще раза в retryInterval, лишние получают 429.
func FallbackHandler(retry func(ctx context.Context) error) http.Handler {
	return newFallbackHandler(retry, rate.NewLimiter(rate.Every(retryInterval), 1))
}

func newFallbackHandler(retry func(ctx context.Context) error, limiter *rate.Limiter) http.Handler {
	var running sync.Mutex

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			_ = ShowFallbackInterface(w)
		case http.MethodPost:
			if !running.TryLock() {
				tooMany(w)
				return
			}
			defer running.Unlock()
			if !limiter.Allow() {
				tooMany(w)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
			defer cancel()
			if retry == nil || retry(ctx) != nil {
				http.Error(w, "retry failed", http.StatusServiceUnavailable)
				return
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func tooMany(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryInterval/time.Second)))
	http.Error(w, "retry already requested, try again later", http.StatusTooManyRequests)
}
