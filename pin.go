package herisson

// Polarity says which way frames move through a pin.
type Polarity int

// Pin polarities.
const (
	PolarityInput Polarity = iota
	PolarityOutput
)

// String returns the string representation of the polarity.
func (p Polarity) String() string {
	if p == PolarityOutput {
		return "output"
	}
	return "input"
}

// pin carries the behaviour shared by both polarities: the handle, the
// declared transport type, and the configuration bucket the pin was built
// from. Transport-specific behaviour lives on the owning InputPin/OutputPin.
type pin struct {
	handle   PinHandle
	polarity Polarity
	typeName string
	params   Params
}

// Handle returns the pin's handle, unique within its module.
func (p *pin) Handle() PinHandle {
	return p.handle
}

// Polarity returns the pin's polarity.
func (p *pin) Polarity() Polarity {
	return p.polarity
}

// Type returns the pin's transport type name.
func (p *pin) Type() string {
	return p.typeName
}

// Config returns the pin's configuration bucket.
func (p *pin) Config() Params {
	return p.params
}
