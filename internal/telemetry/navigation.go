package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/xela07ax/vitals/internal/domain"
)

// TraceNavigationSampler снимает тайминги GET-запроса к собственной странице навигации.
type TraceNavigationSampler struct {
	URL    string
	Client *http.Client
}

func NewTraceNavigationSampler(url string, timeout time.Duration) *TraceNavigationSampler {
	return &TraceNavigationSampler{
		URL: url,
		Client: &http.Client{
			Timeout: timeout,
			// без keep-alive, иначе DNS и TCP будут нулевыми со второго замера
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

func (s *TraceNavigationSampler) SampleNavigation(ctx context.Context) (domain.NavigationTiming, error) {
	if s.URL == "" {
		return domain.NavigationTiming{}, ErrUnavailable
	}

	// колбэки трейса могут приходить из горутин dialer'а
	var mu sync.Mutex
	var dnsStart, dnsDone, connStart, connDone, wroteRequest, firstByte time.Time
	stamp := func(t *time.Time) {
		mu.Lock()
		*t = time.Now()
		mu.Unlock()
	}
	trace := &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { stamp(&dnsStart) },
		DNSDone:              func(httptrace.DNSDoneInfo) { stamp(&dnsDone) },
		ConnectStart:         func(string, string) { stamp(&connStart) },
		ConnectDone:          func(string, string, error) { stamp(&connDone) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { stamp(&connDone) },
		WroteRequest:         func(httptrace.WroteRequestInfo) { stamp(&wroteRequest) },
		GotFirstResponseByte: func() { stamp(&firstByte) },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, s.URL, nil)
	if err != nil {
		return domain.NavigationTiming{}, fmt.Errorf("navigation request: %w", err)
	}

	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		return domain.NavigationTiming{}, fmt.Errorf("navigation: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return domain.NavigationTiming{}, fmt.Errorf("navigation body: %w", err)
	}
	done := time.Now()

	mu.Lock()
	defer mu.Unlock()

	if wroteRequest.IsZero() {
		wroteRequest = start
	}
	if firstByte.IsZero() {
		firstByte = done
	}

	return domain.NavigationTiming{
		DNSMs:             ms(dnsStart, dnsDone),
		TCPMs:             ms(connStart, connDone),
		RequestResponseMs: ms(wroteRequest, firstByte),
		ProcessingMs:      ms(firstByte, done),
	}, nil
}

// ms интервал в миллисекундах, 0 если фаза не наблюдалась (IP-адрес, переиспользованное соединение)
func ms(from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return float64(to.Sub(from)) / float64(time.Millisecond)
}
