//go:build !linux

package main

import (
	"meshsense-go/errcode"
	"meshsense-go/platform"
	"meshsense-go/services/config"
)

func openHardware(_ config.Config, sim bool) (platform.BusOpener, platform.Pin, error) {
	if !sim {
		return nil, nil, &errcode.E{C: errcode.Unsupported, Op: "sht30d", Msg: "no host bus on this platform, use -sim"}
	}
	b, p := openSim()
	return b, p, nil
}
