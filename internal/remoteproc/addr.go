package remoteproc

import "fmt"

// Addr is a physical or device address that may be unspecified.
type Addr struct {
	v  uint64
	ok bool
}

// Unspecified is the zero Addr.
var Unspecified Addr

// Address returns a specified address.
func Address(v uint64) Addr {
	return Addr{v: v, ok: true}
}

// IsSpecified reports whether a holds an address.
func (a Addr) IsSpecified() bool { return a.ok }

// Value returns the address. It is zero when unspecified.
func (a Addr) Value() uint64 { return a.v }

// Or returns a if specified, else b.
func (a Addr) Or(b Addr) Addr {
	if a.ok {
		return a
	}
	return b
}

func (a Addr) String() string {
	if !a.ok {
		return "unspecified"
	}
	return fmt.Sprintf("0x%x", a.v)
}
