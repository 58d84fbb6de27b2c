package app

import "sync"

// DynamicLimiter limite le nombre de sessions de lecture concurrentes.
// Le plafond peut être modifié à chaud via SetLimit.
//
// Le pattern est volontairement simple et ne dépend pas de packages externes.
type DynamicLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
}

func NewDynamicLimiter(limit int) *DynamicLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &DynamicLimiter{limit: limit}
}

func (l *DynamicLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *DynamicLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// SetLimit change le plafond. Baisser le plafond n'expulse pas les slots
// déjà pris; le nouveau plafond s'applique aux acquisitions suivantes.
func (l *DynamicLimiter) SetLimit(limit int) {
	if limit <= 0 {
		limit = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
}

// TryAcquire prend un slot sans attendre. Renvoie false si le plafond est
// atteint (ex: trop de sessions de lecture actives).
func (l *DynamicLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit := l.limit
	if limit <= 0 {
		limit = 1
	}
	if l.inFlight >= limit {
		return false
	}
	l.inFlight++
	return true
}

func (l *DynamicLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
}
