// Package inputstate implements the key and mouse state machines from
// spec §4.5/§4.6 (C5/C6): translating raw keysym/button events into the
// scancode and motion/button primitives the display protocol carries,
// while tracking modifier and lock state across the session.
package inputstate

import (
	"log/slog"
	"sync"

	"github.com/deskrelay/gateway/internal/keymap"
	"github.com/deskrelay/gateway/internal/logging"
)

// X11 keysym constants for the keys this state machine treats specially.
const (
	KeysymShiftL   uint32 = 0xffe1
	KeysymShiftR   uint32 = 0xffe2
	KeysymCtrlL    uint32 = 0xffe3
	KeysymCtrlR    uint32 = 0xffe4
	KeysymCapsLock uint32 = 0xffe5
	KeysymAltL     uint32 = 0xffe9
	KeysymAltR     uint32 = 0xffea
	KeysymSuperL   uint32 = 0xffeb
	KeysymSuperR   uint32 = 0xffec
	KeysymAltGr    uint32 = 0xfe03
	KeysymNumLock  uint32 = 0xff7f
	KeysymScroll   uint32 = 0xff14
)

// Modifier mask bits (spec §3: "a derived modifier mask
// (shift/ctrl/alt/super/altgr/numlock/capslock)").
const (
	ModShift = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
	ModAltGr
	ModNumLock
	ModCapsLock
)

// Lock mask bits.
const (
	LockCaps = 1 << iota
	LockNum
	LockScroll
)

// KeyEvent is one scancode-level primitive the session forwards to the
// RDP input channel.
type KeyEvent struct {
	Scancode uint8
	Flags    uint8
	Pressed  bool
}

// KeyStateMachine tracks pressed keysyms, the derived modifier mask,
// and lock state, translating (keysym, pressed) pairs into scancode
// events via a Keymap lookup (spec §4.5).
type KeyStateMachine struct {
	mu sync.Mutex

	lookup func(keysym uint32) keymap.Entry
	log    *slog.Logger

	pressed    map[uint32]bool
	pressOrder []uint32

	modMask  uint32
	lockMask uint32
}

// NewKeyStateMachine builds a state machine that resolves scancodes via
// lookup (ordinarily Manager.Lookup).
func NewKeyStateMachine(lookup func(keysym uint32) keymap.Entry) *KeyStateMachine {
	return &KeyStateMachine{
		lookup:  lookup,
		log:     logging.L("inputstate"),
		pressed: make(map[uint32]bool),
	}
}

// ModMask returns the current modifier mask.
func (k *KeyStateMachine) ModMask() uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.modMask
}

// LockMask returns the current lock-key mask.
func (k *KeyStateMachine) LockMask() uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lockMask
}

// HandleKey processes one (keysym, pressed) input and returns zero or
// more scancode events to forward (spec §4.5's algorithm).
func (k *KeyStateMachine) HandleKey(keysym uint32, pressed bool) []KeyEvent {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry := k.lookup(keysym)
	if entry == (keymap.Entry{}) {
		k.log.Debug("no scancode mapping for keysym", "keysym", keysym)
		return nil
	}

	if lockBit, isLock := lockBitFor(keysym); isLock {
		if !pressed {
			return nil // lock keys ignore releases
		}
		k.lockMask ^= lockBit
		return []KeyEvent{
			{Scancode: entry.Scancode, Flags: entry.Flags, Pressed: true},
			{Scancode: entry.Scancode, Flags: entry.Flags, Pressed: false},
		}
	}

	if modBit, isMod := modifierBitFor(keysym); isMod {
		if pressed {
			k.modMask |= modBit
		} else {
			k.modMask &^= modBit
		}
	}

	k.updatePressedSet(keysym, pressed)
	return []KeyEvent{{Scancode: entry.Scancode, Flags: entry.Flags, Pressed: pressed}}
}

func (k *KeyStateMachine) updatePressedSet(keysym uint32, pressed bool) {
	if pressed {
		if !k.pressed[keysym] {
			k.pressOrder = append(k.pressOrder, keysym)
		}
		k.pressed[keysym] = true
		return
	}
	delete(k.pressed, keysym)
	for i, ks := range k.pressOrder {
		if ks == keysym {
			k.pressOrder = append(k.pressOrder[:i], k.pressOrder[i+1:]...)
			break
		}
	}
}

// Shutdown emits a synthetic release for every keysym still marked
// pressed, in the reverse order of press, and clears the pressed set
// and modifier mask; the lock mask is kept (spec §4.5's disconnect
// rule).
func (k *KeyStateMachine) Shutdown() []KeyEvent {
	k.mu.Lock()
	defer k.mu.Unlock()

	var events []KeyEvent
	for i := len(k.pressOrder) - 1; i >= 0; i-- {
		keysym := k.pressOrder[i]
		if !k.pressed[keysym] {
			continue
		}
		entry := k.lookup(keysym)
		events = append(events, KeyEvent{Scancode: entry.Scancode, Flags: entry.Flags, Pressed: false})
	}
	k.pressed = make(map[uint32]bool)
	k.pressOrder = nil
	k.modMask = 0
	return events
}

func lockBitFor(keysym uint32) (uint32, bool) {
	switch keysym {
	case KeysymCapsLock:
		return LockCaps, true
	case KeysymNumLock:
		return LockNum, true
	case KeysymScroll:
		return LockScroll, true
	default:
		return 0, false
	}
}

func modifierBitFor(keysym uint32) (uint32, bool) {
	switch keysym {
	case KeysymShiftL, KeysymShiftR:
		return ModShift, true
	case KeysymCtrlL, KeysymCtrlR:
		return ModCtrl, true
	case KeysymAltL, KeysymAltR:
		return ModAlt, true
	case KeysymSuperL, KeysymSuperR:
		return ModSuper, true
	case KeysymAltGr:
		return ModAltGr, true
	default:
		return 0, false
	}
}
