package main

import "github.com/pilab-dev/exam-sso/cmd/ssoctl/cmd"

func main() {
	cmd.Execute()
}
