package memorypool

import (
	"github.com/dustin/go-humanize"
	"github.com/valyala/bytebufferpool"
	"k8s.io/klog/v2"
)

// PressureResponse is the action taken when estimated memory pressure
// exceeds a threshold.
type PressureResponse int

const (
	LogWarning PressureResponse = iota
	ReducePools
	ClearSmallPools
	EmergencyMode
)

// ApplyPressure applies response, with pct used only by ReducePools (0..1,
// fraction of capacity to shed).
func (p *Pool) ApplyPressure(response PressureResponse, pct float64) {
	switch response {
	case EmergencyMode:
		p.pressureMu.Lock()
		p.emergency = true
		p.pressureMu.Unlock()
		klog.Warningf("memorypool: entering emergency mode, pooling bypassed")
	case ReducePools:
		p.mu.RLock()
		subs := make([]*subPool, 0, len(p.subs))
		for _, s := range p.subs {
			subs = append(subs, s)
		}
		p.mu.RUnlock()
		for _, s := range subs {
			s.mu.Lock()
			before := s.capacity
			reduced := int(float64(s.capacity) * (1 - pct))
			if reduced < s.hint.floor() {
				reduced = s.hint.floor()
			}
			s.capacity = reduced
			s.mu.Unlock()
			klog.V(3).Infof("memorypool: %s pool reduced from %s to %s bytes of capacity",
				s.hint, humanize.IBytes(uint64(before)*uint64(s.hint.TypicalSize())), humanize.IBytes(uint64(reduced)*uint64(s.hint.TypicalSize())))
		}
	case ClearSmallPools:
		p.mu.RLock()
		subs := make([]*subPool, 0, len(p.subs))
		for _, s := range p.subs {
			subs = append(subs, s)
		}
		p.mu.RUnlock()
		for _, s := range subs {
			if s.hint.TypicalSize() <= ContentConfig.TypicalSize() {
				s.mu.Lock()
				s.pool = bytebufferpool.Pool{}
				s.mu.Unlock()
			}
		}
	case LogWarning:
		klog.Warningf("memorypool: memory pressure threshold exceeded")
	}
}

// ExitEmergencyMode restores normal pooling after EmergencyMode.
func (p *Pool) ExitEmergencyMode() {
	p.pressureMu.Lock()
	defer p.pressureMu.Unlock()
	p.emergency = false
}

// IsEmergency reports whether the pool is currently bypassing pooling.
func (p *Pool) IsEmergency() bool {
	p.pressureMu.Lock()
	defer p.pressureMu.Unlock()
	return p.emergency
}
