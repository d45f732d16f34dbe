// Read-ahead hint stub for non-linux platforms
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !linux

package postprocess

import "os"

func adviseSequential(*os.File) {}
