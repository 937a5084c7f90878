package mixer

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/thoas/go-funk"
)

// targetMap maps a hardware slider or switch index to the targets it controls
type targetMap struct {
	m    map[int][]string
	lock sync.Locker
}

func newTargetMap() *targetMap {
	return &targetMap{
		m:    make(map[int][]string),
		lock: &sync.Mutex{},
	}
}

func targetMapFromConfig(userMapping map[string][]string) *targetMap {
	resultMap := newTargetMap()

	for idxString, targets := range userMapping {
		idx, err := strconv.Atoi(idxString)
		if err != nil {
			continue
		}

		lowered := make([]string, 0, len(targets))
		for _, target := range targets {
			lowered = append(lowered, strings.ToLower(strings.TrimSpace(target)))
		}

		resultMap.set(idx, funk.UniqString(funk.FilterString(lowered, func(s string) bool {
			return s != ""
		})))
	}

	return resultMap
}

func (m *targetMap) get(key int) ([]string, bool) {
	if m == nil {
		return nil, false
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	value, ok := m.m[key]
	return value, ok
}

func (m *targetMap) set(key int, value []string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.m[key] = value
}

func (m *targetMap) String() string {
	if m == nil {
		return "<empty>"
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	indexCount := 0
	targetCount := 0

	for _, value := range m.m {
		indexCount++
		targetCount += len(value)
	}

	return fmt.Sprintf("<%d controls mapped to %d targets>", indexCount, targetCount)
}
