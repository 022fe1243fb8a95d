package useragent

import (
	"fmt"
	"runtime"

	"github.com/helpdesk/hdtelemetry/pkg/version"
)

var Header = fmt.Sprintf("hdtelemetry/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH)
