package esplink

import "sync"

// StatusCache holds the last-known DeviceStatus. Updates merge field by field:
// a field missing from an update keeps its previous value.
type StatusCache struct {
	mu     sync.RWMutex
	status DeviceStatus
}

func NewStatusCache() *StatusCache {
	return &StatusCache{}
}

// Update merges p into the cached status and returns the new snapshot.
// Applying the same patch twice yields the same snapshot as applying it once.
func (c *StatusCache) Update(p StatusPatch) DeviceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.status
	if p.Connected != nil {
		s.Connected = *p.Connected
	}
	mergeInt(&s.Battery, p.Battery)
	mergeInt(&s.Category, p.Category)
	mergeBool(&s.SystemOn, p.SystemOn)
	mergeBool(&s.MP3Ready, p.MP3Ready)
	mergeBool(&s.SDReady, p.SDReady)
	mergeBool(&s.AudioTransferActive, p.AudioTransferActive)
	mergeInt(&s.BootCount, p.BootCount)
	mergeInt(&s.UptimeSeconds, p.UptimeSeconds)
	mergeInt(&s.WifiRSSI, p.WifiRSSI)
	mergeInt(&s.FreeHeapBytes, p.FreeHeapBytes)
	if p.Buttons != nil {
		s.Buttons = cloneButtons(p.Buttons)
	}
	if p.FromHeartbeat && !p.ReceivedAt.IsZero() {
		s.LastHeartbeatAt = p.ReceivedAt
	}

	return s.Clone()
}

// Snapshot returns a copy that callers may modify freely.
func (c *StatusCache) Snapshot() DeviceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Clone()
}

func mergeInt(dst **int, src *int) {
	if src != nil {
		*dst = cloneInt(src)
	}
}

func mergeBool(dst **bool, src *bool) {
	if src != nil {
		*dst = cloneBool(src)
	}
}
