// Точка входа Quarantine Module — карантин входящих файлов.
// Команды: serve (HTTP API и фоновый конвейер), migrate (схема БД),
// scan (разовая офлайн-проверка файлов без базы).
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFilesHeld) {
			fmt.Fprintln(os.Stderr, "Ошибка:", err)
		}
		os.Exit(1)
	}
}
