// Package sl содержит помощники для структурированных полей slog,
// общие для всех слоёв сервиса.
package sl

import "log/slog"

// Err кладёт текст ошибки в атрибут с ключом "error": все обработчики
// и сервисы логируют ошибки одним и тем же полем.
func Err(err error) slog.Attr {
	return slog.String("error", err.Error())
}
