package human

import (
	"math/rand/v2"
	"sync"
	"time"

	"coupon-clipper/internal/config"
)

const (
	slowStartFactor = 1.5
	cautiousFactor  = 1.2
)

// Pacer выбирает задержку перед кликом.
// Пока подряд успешных кликов меньше порога, окно растягивается в 1.5 раза,
// после rate limit: в 1.2 раза.
type Pacer struct {
	mu sync.Mutex

	settings config.Settings
	min, max float64
	rapid    bool

	consecutive int
	rateLimited bool

	rng *rand.Rand
}

// NewPacer берёт окно из настроек и применяет переопределения сайта.
func NewPacer(settings config.Settings, site *config.SiteProfile, rng *rand.Rand) *Pacer {
	if rng == nil {
		rng = NewRand()
	}
	p := &Pacer{settings: settings, min: settings.RandomDelayMin, max: settings.RandomDelayMax, rng: rng}
	if site != nil {
		p.min, p.max = ApplyOverrides(site, p.min, p.max)
	}
	return p
}

// ApplyOverrides подставляет min/max_delay_override сайта, если они заданы.
func ApplyOverrides(site *config.SiteProfile, lo, hi float64) (float64, float64) {
	if v := site.SiteSpecificSettings.MinDelayOverride; v != nil {
		lo = *v
	}
	if v := site.SiteSpecificSettings.MaxDelayOverride; v != nil {
		hi = *v
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// SetWindow задаёт базовое окно задержки в секундах.
func (p *Pacer) SetWindow(lo, hi float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hi < lo {
		hi = lo
	}
	p.min, p.max, p.rapid = lo, hi, false
}

// SetRapid включает быстрый режим с окном rapid_mode_min/max_delay.
func (p *Pacer) SetRapid() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.min, p.max, p.rapid = p.settings.RapidModeMinDelay, p.settings.RapidModeMaxDelay, true
}

func (p *Pacer) Rapid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rapid
}

// Window: текущее базовое окно без множителя.
func (p *Pacer) Window() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min, p.max
}

// Factor: множитель окна для следующего клика.
func (p *Pacer) Factor() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.factorLocked()
}

func (p *Pacer) factorLocked() float64 {
	if p.rapid || !p.settings.SlowStart || !p.settings.AdaptiveDelay {
		return 1
	}
	if p.consecutive < p.settings.AccelerationThreshold {
		return slowStartFactor
	}
	if p.rateLimited {
		return cautiousFactor
	}
	return 1
}

// Next возвращает задержку из [min*f, max*f].
func (p *Pacer) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.factorLocked()
	return config.Seconds(uniform(p.rng, p.min*f, p.max*f))
}

func (p *Pacer) Success() {
	p.mu.Lock()
	p.consecutive++
	p.mu.Unlock()
}

func (p *Pacer) Failure() {
	p.mu.Lock()
	p.consecutive = 0
	p.mu.Unlock()
}

func (p *Pacer) RateLimited() {
	p.mu.Lock()
	p.consecutive = 0
	p.rateLimited = true
	p.mu.Unlock()
}

// Consecutive: число успешных кликов подряд.
func (p *Pacer) Consecutive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutive
}

// Reset сбрасывает счётчики при переходе на новый сайт.
func (p *Pacer) Reset() {
	p.mu.Lock()
	p.consecutive = 0
	p.rateLimited = false
	p.mu.Unlock()
}
