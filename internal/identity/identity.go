// Package identity gives every physical device a stable slot in a session
// and every slot a role-specific index.
//
// The device → slot mapping only ever grows: a slot handed to a device stays
// with it for the rest of the session, and two devices never share a slot.
package identity

import (
	"errors"
	"fmt"

	"github.com/lox/hotelling/internal/game"
)

// ErrCapacity is returned when every slot is already taken.
var ErrCapacity = errors.New("identity: no free slot")

// Mapper resolves device ids to slots.
type Mapper struct {
	roles   []game.Role
	roleIDs []int
	devices map[string]int
	owners  []string
}

// Snapshot is the persisted form of a Mapper.
type Snapshot struct {
	Roles   []game.Role    `json:"roles"`
	Devices map[string]int `json:"devices"`
}

// New returns an empty mapper for a session with the given slot roles.
func New(roles []game.Role) *Mapper {
	m := &Mapper{
		roles:   append([]game.Role(nil), roles...),
		roleIDs: make([]int, len(roles)),
		devices: make(map[string]int, len(roles)),
		owners:  make([]string, len(roles)),
	}
	counts := map[game.Role]int{}
	for slot, role := range roles {
		m.roleIDs[slot] = counts[role]
		counts[role]++
	}
	return m
}

// Restore rebuilds a mapper and checks the mapping is still a bijection.
func Restore(s Snapshot) (*Mapper, error) {
	m := New(s.Roles)
	for device, slot := range s.Devices {
		if slot < 0 || slot >= len(m.roles) {
			return nil, fmt.Errorf("device %q mapped to slot %d out of range", device, slot)
		}
		if owner := m.owners[slot]; owner != "" {
			return nil, fmt.Errorf("slot %d mapped to both %q and %q", slot, owner, device)
		}
		m.devices[device] = slot
		m.owners[slot] = device
	}
	return m, nil
}

// Resolve returns the slot of device, allocating the lowest free slot the
// first time the device is seen. created reports a new allocation, which the
// caller must persist.
func (m *Mapper) Resolve(device string) (slot int, created bool, err error) {
	if slot, ok := m.devices[device]; ok {
		return slot, false, nil
	}
	slot = m.free(func(game.Role) bool { return true })
	if slot < 0 {
		return -1, false, ErrCapacity
	}
	m.assign(device, slot)
	return slot, true, nil
}

// Preassign binds a roster device to the lowest free slot with role. It is
// idempotent for a device already bound to a slot of that role.
func (m *Mapper) Preassign(device string, role game.Role) (int, error) {
	if slot, ok := m.devices[device]; ok {
		if m.roles[slot] != role {
			return -1, fmt.Errorf("device %q already holds a %s slot", device, m.roles[slot])
		}
		return slot, nil
	}
	slot := m.free(func(r game.Role) bool { return r == role })
	if slot < 0 {
		return -1, fmt.Errorf("no free %s slot for %q: %w", role, device, ErrCapacity)
	}
	m.assign(device, slot)
	return slot, nil
}

func (m *Mapper) free(match func(game.Role) bool) int {
	for slot, owner := range m.owners {
		if owner == "" && match(m.roles[slot]) {
			return slot
		}
	}
	return -1
}

func (m *Mapper) assign(device string, slot int) {
	m.devices[device] = slot
	m.owners[slot] = device
}

// Lookup returns the slot of a known device.
func (m *Mapper) Lookup(device string) (int, bool) {
	slot, ok := m.devices[device]
	return slot, ok
}

// Device returns the device holding slot.
func (m *Mapper) Device(slot int) (string, bool) {
	if slot < 0 || slot >= len(m.owners) || m.owners[slot] == "" {
		return "", false
	}
	return m.owners[slot], true
}

// Role returns the role of slot.
func (m *Mapper) Role(slot int) (game.Role, bool) {
	if slot < 0 || slot >= len(m.roles) {
		return 0, false
	}
	return m.roles[slot], true
}

// RoleID returns the firm or customer index of slot.
func (m *Mapper) RoleID(slot int) int {
	return m.roleIDs[slot]
}

// Slot is the inverse of RoleID.
func (m *Mapper) Slot(role game.Role, id int) int {
	for slot, r := range m.roles {
		if r == role && m.roleIDs[slot] == id {
			return slot
		}
	}
	return -1
}

// Capacity is the number of slots.
func (m *Mapper) Capacity() int { return len(m.roles) }

// Assigned is the number of slots held by a device.
func (m *Mapper) Assigned() int { return len(m.devices) }

// Roles returns a copy of the slot roles.
func (m *Mapper) Roles() []game.Role {
	return append([]game.Role(nil), m.roles...)
}

// Snapshot returns a copy suitable for persisting.
func (m *Mapper) Snapshot() Snapshot {
	devices := make(map[string]int, len(m.devices))
	for d, s := range m.devices {
		devices[d] = s
	}
	return Snapshot{Roles: m.Roles(), Devices: devices}
}
