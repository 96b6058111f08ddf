package main

import "github.com/antgroup/cvc/pkg/version"

func versionString() string {
	return version.GetVersionString()
}
