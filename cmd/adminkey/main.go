// Команда adminkey печатает bcrypt-хеш ключа администратора для ADMIN_GRANT_KEY_HASH.
//
//	adminkey <ключ>
package main

import (
	"fmt"
	"os"

	"github.com/curadoria-elite-travel/fulfillment/internal/lib/password"
)

func main() {
	if len(os.Args) != 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: adminkey <key>")
		os.Exit(2)
	}
	hash, err := password.GetHash(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
