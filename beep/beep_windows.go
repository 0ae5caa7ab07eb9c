//go:build windows

package beep

// No audio cues on Windows.

func Init()           {}
func PlayConnect()    {}
func PlayDisconnect() {}
func PlayError()      {}
func PlayInterrupt()  {}
