//go:build !loomffi

package core

// Available reports whether this binary was built against libloom.
// Without the loomffi build tag there is no runtime to drive; Live returns an
// inert implementation so the rest of the host degrades cleanly.
func Available() bool { return false }

// Live returns the boundary implementation. In stub builds every operation is
// a no-op and Init never yields a handle.
func Live() API { return stubAPI{} }

type stubAPI struct{}

func (stubAPI) Init(string) Handle                { return 0 }
func (stubAPI) Start(Handle) int32                { return -1 }
func (stubAPI) SetEventCallback(Handle, uintptr)  {}
func (stubAPI) SendCommand(Handle, string) Buffer { return nil }
func (stubAPI) Release(Buffer)                    {}
func (stubAPI) Stop(Handle)                       {}
func (stubAPI) Destroy(Handle)                    {}
