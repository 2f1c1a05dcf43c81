// Package surface хранит дерево элементов, которое UI-слой регистрирует в сервисе.
// Мониторинг только читает его, оптимизатор и восстановление меняют через узкие методы.
package surface

import (
	"math"
	"sort"
	"sync"

	"github.com/xela07ax/vitals/internal/domain"
)

type Kind string

const (
	KindElement Kind = "element"
	KindScript  Kind = "script"
	KindImage   Kind = "image"
	KindForm    Kind = "form"
	KindLink    Kind = "link"
)

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center центр прямоугольника
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Distance от точки до центра
func (r Rect) Distance(x, y float64) float64 {
	cx, cy := r.Center()
	return math.Hypot(cx-x, cy-y)
}

type Element struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Region      string `json:"region,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
	Lazy        bool   `json:"lazy,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`
	Href        string `json:"href,omitempty"`
	Bounds      Rect   `json:"bounds"`
}

// RegionState: присутствие и интерактивность области UI
type RegionState struct {
	Present     bool `json:"present"`
	Interactive bool `json:"interactive"`
}

// Registry потокобезопасный реестр элементов
type Registry struct {
	mu       sync.RWMutex
	elements map[string]Element
}

func NewRegistry() *Registry {
	return &Registry{elements: make(map[string]Element)}
}

// Upsert добавляет или заменяет элементы
func (r *Registry) Upsert(els ...Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, el := range els {
		if el.ID == "" {
			continue
		}
		if el.Kind == "" {
			el.Kind = KindElement
		}
		r.elements[el.ID] = el
	}
}

// Replace полностью заменяет дерево (UI присылает его целиком)
func (r *Registry) Replace(els []Element) {
	next := make(map[string]Element, len(els))
	for _, el := range els {
		if el.ID == "" {
			continue
		}
		if el.Kind == "" {
			el.Kind = KindElement
		}
		next[el.ID] = el
	}
	r.mu.Lock()
	r.elements = next
	r.mu.Unlock()
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.elements, id)
}

// Elements копия дерева, отсортированная по ID
func (r *Registry) Elements() []Element {
	r.mu.RLock()
	out := make([]Element, 0, len(r.elements))
	for _, el := range r.elements {
		out = append(out, el)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats счетчики для MetricsSnapshot
func (r *Registry) Stats() domain.SurfaceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := domain.SurfaceStats{ElementCount: len(r.elements)}
	for _, el := range r.elements {
		switch el.Kind {
		case KindScript:
			st.ScriptCount++
		case KindImage:
			st.ImageCount++
		case KindForm:
			st.FormCount++
		}
	}
	return st
}

// Regions сводка по областям. Скрытые элементы область не "показывают".
func (r *Registry) Regions() map[string]RegionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]RegionState)
	for _, el := range r.elements {
		if el.Region == "" || el.Hidden {
			continue
		}
		st := out[el.Region]
		st.Present = true
		st.Interactive = st.Interactive || el.Interactive
		out[el.Region] = st
	}
	return out
}

// Targets навигационные цели (ссылки с href) для предзагрузки
func (r *Registry) Targets() []Element {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Element
	for _, el := range r.elements {
		if el.Kind == KindLink && el.Href != "" && !el.Hidden {
			out = append(out, el)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LazyifyImages помечает ленивыми только те изображения, что еще не помечены.
// Повторный вызов ничего не меняет и возвращает 0.
func (r *Registry) LazyifyImages() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, el := range r.elements {
		if el.Kind == KindImage && !el.Lazy {
			el.Lazy = true
			r.elements[id] = el
			n++
		}
	}
	return n
}

// PruneHidden удаляет скрытые элементы
func (r *Registry) PruneHidden() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, el := range r.elements {
		if el.Hidden {
			delete(r.elements, id)
			n++
		}
	}
	return n
}

// Reset мягкий сброс корневого контейнера: дерево пустое, UI перерисует заново
func (r *Registry) Reset() error {
	r.mu.Lock()
	r.elements = make(map[string]Element)
	r.mu.Unlock()
	return nil
}
