/*
   Copyright Mycophonic.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package version exposes the build version string for the CLI front end.
package version

import "fmt"

// Version is the module's semantic version, set at release time.
var Version = "0.1.0"

// Commit is the short VCS commit hash, overridden via -ldflags at build
// time. Empty in development builds.
var Commit = ""

// String formats the version for display.
func String() string {
	if Commit == "" {
		return fmt.Sprintf("truehd v%s", Version)
	}

	return fmt.Sprintf("truehd v%s (%s)", Version, Commit)
}
