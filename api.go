package herisson

// The handle-based surface. Every operation takes and returns opaque integer
// handles; failures fold into sentinel values (InvalidModule, InvalidPin,
// InvalidFrame, -1, ResultError) plus a log entry, never a panic. Host
// applications that want Go-native error values can use the Module, OutputPin
// and FramePool types directly.

// GlobalParam addresses one process-wide tunable.
type GlobalParam int

// Global parameters.
const (
	// ParamMaxFramesInList is the frame-pool slot bound (read/write).
	ParamMaxFramesInList GlobalParam = iota
	// ParamCurFramesInList is the current pool slot count (read-only).
	ParamCurFramesInList
)

// CreateModule parses config, builds a module with one pin per declared pin
// bucket, binds its control channel on port (0 disables, unless the module
// bucket carries control_port) and registers it. userData is handed back on
// every callback. Returns InvalidModule on failure.
func CreateModule(port int, callback Callback, config string, userData any) ModuleHandle {
	m, err := newModule(port, callback, config, userData, defaultPool)
	if err != nil {
		logger.Error("create module failed", "config", config, "err", err)
		return InvalidModule
	}
	return m.handle
}

// ModuleOptions carries the extended creation settings of CreateModuleExt.
type ModuleOptions struct {
	// ControlAddr is the control-channel bind address (default 127.0.0.1).
	ControlAddr string
}

// CreateModuleExt is CreateModule with extended options.
func CreateModuleExt(port int, callback Callback, config string, userData any, opts ModuleOptions) ModuleHandle {
	if opts.ControlAddr != "" {
		config = "control_addr=" + opts.ControlAddr + "," + config
	}
	return CreateModule(port, callback, config, userData)
}

// StartModule starts the module's pins and control task and delivers
// CmdStart synchronously before returning.
func StartModule(module ModuleHandle) Result {
	m := lookupModule(module)
	if m == nil {
		logger.Error("start on unknown module", "module", module)
		return ResultError
	}
	if err := m.start(); err != nil {
		logger.Error("start failed", "module", module, "err", err)
		return ResultError
	}
	return ResultOK
}

// StopModule stops the module's pins, quiesces queues and delivers CmdStop
// synchronously. Idempotent.
func StopModule(module ModuleHandle) Result {
	m := lookupModule(module)
	if m == nil {
		logger.Error("stop on unknown module", "module", module)
		return ResultError
	}
	if err := m.stop(); err != nil {
		logger.Error("stop failed", "module", module, "err", err)
		return ResultError
	}
	return ResultOK
}

// CloseModule stops the module if running, tears down its pins and control
// channel and removes it from the registry. Terminal.
func CloseModule(module ModuleHandle) Result {
	m := lookupModule(module)
	if m == nil {
		logger.Error("close on unknown module", "module", module)
		return ResultError
	}
	if err := m.close(); err != nil {
		logger.Error("close failed", "module", module, "err", err)
		return ResultError
	}
	return ResultOK
}

// GetInputCount returns the module's input pin count, or -1.
func GetInputCount(module ModuleHandle) int {
	m := lookupModule(module)
	if m == nil {
		logger.Error("input count on unknown module", "module", module)
		return -1
	}
	return m.InputCount()
}

// GetOutputCount returns the module's output pin count, or -1.
func GetOutputCount(module ModuleHandle) int {
	m := lookupModule(module)
	if m == nil {
		logger.Error("output count on unknown module", "module", module)
		return -1
	}
	return m.OutputCount()
}

// GetInputHandle returns the handle of the i-th input pin, or InvalidPin.
func GetInputHandle(module ModuleHandle, i int) PinHandle {
	m := lookupModule(module)
	if m == nil {
		logger.Error("input handle on unknown module", "module", module)
		return InvalidPin
	}
	in, err := m.Input(i)
	if err != nil {
		logger.Error("input handle out of range", "module", module, "index", i)
		return InvalidPin
	}
	return in.Handle()
}

// GetOutputHandle returns the handle of the i-th output pin, or InvalidPin.
func GetOutputHandle(module ModuleHandle, i int) PinHandle {
	m := lookupModule(module)
	if m == nil {
		logger.Error("output handle on unknown module", "module", module)
		return InvalidPin
	}
	out, err := m.Output(i)
	if err != nil {
		logger.Error("output handle out of range", "module", module, "index", i)
		return InvalidPin
	}
	return out.Handle()
}

// SetOutputParameter applies one output parameter to the pin behind handle.
func SetOutputParameter(module ModuleHandle, output PinHandle, kind OutputParam, value string) Result {
	m := lookupModule(module)
	if m == nil {
		logger.Error("set parameter on unknown module", "module", module)
		return ResultError
	}
	out := m.outputByHandle(output)
	if out == nil {
		logger.Error("set parameter on unknown output", "module", module, "pin", output)
		return ResultError
	}
	if err := out.SetParameter(kind, value); err != nil {
		logger.Error("set parameter failed", "module", module, "pin", output, "err", err)
		return ResultError
	}
	return ResultOK
}

// Send enqueues the frame on the output pin behind handle. The pin takes its
// own reference; the caller may release the frame as soon as Send returns.
//
// A missing output pin is a logged no-op that still reports ResultOK; an
// unknown frame handle reports ResultError.
func Send(module ModuleHandle, output PinHandle, frame FrameHandle) Result {
	m := lookupModule(module)
	if m == nil {
		logger.Error("send on unknown module", "module", module)
		return ResultError
	}
	out := m.outputByHandle(output)
	if out == nil {
		logger.Error("send on unknown output, frame not sent", "module", module, "pin", output)
		return ResultOK
	}
	if err := out.Send(frame); err != nil {
		logger.Error("send failed", "module", module, "pin", output, "frame", frame, "err", err)
		return ResultError
	}
	return ResultOK
}

// FrameCreate acquires an empty frame from the process-wide pool, refcount 1.
// Returns InvalidFrame when the pool is exhausted.
func FrameCreate() FrameHandle {
	h, err := defaultPool.Acquire()
	if err != nil {
		logger.Error("frame create failed", "err", err)
		return InvalidFrame
	}
	return h
}

// FrameCreateExt acquires a frame carrying the given headers, with the
// payload buffer sized from them. Returns InvalidFrame on validation failure
// or exhaustion.
func FrameCreateExt(headers FrameHeaders) FrameHandle {
	h, err := defaultPool.AcquireWithInit(headers)
	if err != nil {
		logger.Error("frame create failed", "err", err)
		return InvalidFrame
	}
	return h
}

// FrameAddRef increments the frame's reference count and returns the new
// count, or -1 for an unknown handle.
func FrameAddRef(frame FrameHandle) int {
	return defaultPool.AddRef(frame)
}

// FrameRelease decrements the frame's reference count and returns the new
// count, or -1 for an unknown handle. At zero the slot is recycled.
func FrameRelease(frame FrameHandle) int {
	return defaultPool.Release(frame)
}

// FrameGetSize returns the frame's payload size in bytes, or -1.
func FrameGetSize(frame FrameHandle) int {
	n := defaultPool.MediaSize(frame)
	if n < 0 {
		logger.Error("size read on unknown frame", "frame", frame)
	}
	return n
}

// GetFrameBuffer returns the frame's payload buffer, or nil. The slice stays
// valid while the caller holds at least one reference.
func GetFrameBuffer(frame FrameHandle) []byte {
	f := defaultPool.Lookup(frame)
	if f == nil {
		logger.Error("buffer read on unknown frame", "frame", frame)
		return nil
	}
	return f.Buffer()
}

// GetFrameHeaders returns a copy of the frame's structured headers. Unknown
// handles read as the zero value.
func GetFrameHeaders(frame FrameHandle) FrameHeaders {
	f := defaultPool.Lookup(frame)
	if f == nil {
		logger.Error("headers read on unknown frame", "frame", frame)
		return FrameHeaders{}
	}
	return f.Headers()
}

// SetFrameHeaders replaces the frame's headers wholesale, resizing the
// payload buffer to the new media size.
func SetFrameHeaders(frame FrameHandle, headers FrameHeaders) Result {
	f := defaultPool.Lookup(frame)
	if f == nil {
		logger.Error("headers write on unknown frame", "frame", frame)
		return ResultError
	}
	f.SetHeaders(headers)
	return ResultOK
}

// GetFrameHeader reads one header field of the frame. Unknown handles read
// as 0.
func GetFrameHeader(frame FrameHandle, kind HeaderKind) int64 {
	v, ok := defaultPool.GetHeader(frame, kind)
	if !ok {
		logger.Error("header read on unknown frame", "frame", frame)
		return 0
	}
	return v
}

// SetFrameHeader writes one header field of the frame.
func SetFrameHeader(frame FrameHandle, kind HeaderKind, value int64) Result {
	if !defaultPool.SetHeader(frame, kind, value) {
		logger.Error("header write on unknown frame", "frame", frame)
		return ResultError
	}
	return ResultOK
}

// GetParameter reads a process-wide parameter, or -1 for an unknown kind.
func GetParameter(kind GlobalParam) int {
	switch kind {
	case ParamMaxFramesInList:
		return defaultPool.Cap()
	case ParamCurFramesInList:
		return defaultPool.Len()
	default:
		logger.Error("unknown global parameter", "kind", int(kind))
		return -1
	}
}

// SetParameter writes a process-wide parameter. Read-only and unknown kinds
// report ResultError.
func SetParameter(kind GlobalParam, value int) Result {
	switch kind {
	case ParamMaxFramesInList:
		if value <= 0 {
			logger.Error("bad pool cap", "value", value)
			return ResultError
		}
		defaultPool.SetCap(value)
		return ResultOK
	default:
		logger.Error("parameter is not writable", "kind", int(kind))
		return ResultError
	}
}
