package optimizer

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/vitals/internal/surface"
)

const (
	prefetchTTL     = 5 * time.Minute
	prefetchTimeout = 5 * time.Second
)

// Hinter выполняет низкоприоритетную подсказку предзагрузки
type Hinter interface {
	Hint(ctx context.Context, href string) error
}

type TargetSource interface {
	Targets() []surface.Element
}

// HTTPHinter прогревает маршрут GET-запросом с заголовком Sec-Purpose
type HTTPHinter struct {
	Base   string
	Client *http.Client
}

func NewHTTPHinter(base string) *HTTPHinter {
	return &HTTPHinter{Base: strings.TrimSuffix(base, "/"), Client: &http.Client{Timeout: prefetchTimeout}}
}

func (h *HTTPHinter) Hint(ctx context.Context, href string) error {
	url := href
	if strings.HasPrefix(href, "/") {
		url = h.Base + href
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Sec-Purpose", "prefetch")
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Prefetcher следит за положением указателя и подсказывает предзагрузку целей
// в радиусе. Никогда не блокирует вызывающего, ошибки молча отбрасываются.
type Prefetcher struct {
	targets TargetSource
	hinter  Hinter
	radius  float64
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	seen       map[string]time.Time
	sweptAt    time.Time
	x, y       float64
	hasPointer bool
}

func NewPrefetcher(targets TargetSource, hinter Hinter, radius float64, logger *zap.Logger) *Prefetcher {
	if radius <= 0 {
		radius = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefetcher{
		targets: targets,
		hinter:  hinter,
		radius:  radius,
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		logger:  logger.Named("prefetch"),
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
}

// Observe новое положение указателя. Возвращает ссылки, для которых запущена подсказка.
func (p *Prefetcher) Observe(ctx context.Context, x, y float64) []string {
	p.mu.Lock()
	p.x, p.y, p.hasPointer = x, y, true
	p.mu.Unlock()

	return p.hintNear(ctx, x, y)
}

// PrefetchLikely повторяет подсказки для последнего известного положения указателя
func (p *Prefetcher) PrefetchLikely(ctx context.Context) []string {
	p.mu.Lock()
	x, y, ok := p.x, p.y, p.hasPointer
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.hintNear(ctx, x, y)
}

func (p *Prefetcher) hintNear(ctx context.Context, x, y float64) []string {
	if p.targets == nil || p.hinter == nil {
		return nil
	}

	var scheduled []string
	for _, el := range p.targets.Targets() {
		if el.Bounds.Distance(x, y) > p.radius {
			continue
		}
		if !p.claim(el.Href) {
			continue
		}
		if !p.limiter.Allow() {
			p.release(el.Href)
			break
		}
		scheduled = append(scheduled, el.Href)

		href := el.Href
		go func() {
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), prefetchTimeout)
			defer cancel()
			if err := p.hinter.Hint(hctx, href); err != nil {
				p.logger.Debug("prefetch hint dropped", zap.String("href", href), zap.Error(err))
			}
		}()
	}
	return scheduled
}

// claim каждая ссылка не чаще раза в prefetchTTL
func (p *Prefetcher) claim(href string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.sweptAt) >= prefetchTTL {
		p.sweep(now)
	}
	if at, ok := p.seen[href]; ok && now.Sub(at) < prefetchTTL {
		return false
	}
	p.seen[href] = now
	return true
}

// sweep удаляет записи старше prefetchTTL, вызывается под mu
func (p *Prefetcher) sweep(now time.Time) {
	for href, at := range p.seen {
		if now.Sub(at) >= prefetchTTL {
			delete(p.seen, href)
		}
	}
	p.sweptAt = now
}

func (p *Prefetcher) release(href string) {
	p.mu.Lock()
	delete(p.seen, href)
	p.mu.Unlock()
}
