// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/jaegerlite/tracing"
)

const unknown = "unknown"

var getRevision = sync.OnceValue(func() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return unknown
	}
	return revision(buildInfo.Settings)
})

func revision(settings []debug.BuildSetting) string {
	rev := unknown
	var modified bool
	for _, v := range settings {
		switch v.Key {
		case "vcs.revision":
			rev = v.Value
		case "vcs.modified":
			modified = v.Value == "true"
		}
	}
	if modified {
		rev += "-dirty"
	}
	return rev
}

type version struct {
	Release  string
	Revision string
	Go       string
	Platform string
}

func newVersion() version {
	return version{
		Release:  tracing.Version(),
		Revision: getRevision(),
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (v version) String() string {
	return fmt.Sprintf("agentsink %s (%s, %s %s)", v.Release, v.Revision, v.Go, v.Platform)
}
