package cmd

import (
	"fmt"
)

const banner = `
                 _                                      
   ___ _   _ ___| |_ ___  _ __ ___   ___ _ __ _____   _____
  / __| | | / __| __/ _ \| '_ ` + "`" + ` _ \ / _ \ '__/ __\ \ / / __|
 | (__| |_| \__ \ || (_) | | | | | |  __/ |  \__ \\ V / (__
  \___|\__,_|___/\__\___/|_| |_| |_|\___|_|  |___/ \_/ \___|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Customer Account Service - Version %s\x1b[0m\n\n", Version)
}
