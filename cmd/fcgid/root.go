// Copyright 2015 Light Code Labs, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import "github.com/spf13/cobra"

// rootCmd assembles the fcgid command tree, a single-package
// root-command-factory with no plugin/module system to accommodate.
func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fcgid",
		Short: "A standalone FastCGI 1.0 responder",
		Long: `fcgid runs a FastCGI 1.0 responder: a TCP server that speaks the
FastCGI wire protocol to an upstream web server (e.g. nginx configured
with fastcgi_pass) and dispatches completed requests to an application
handler.

	fcgid serve --port 9000

binds 127.0.0.1:9000 and serves until interrupted.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}
