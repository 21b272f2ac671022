// Package secrets управляет временем жизни credentials внутри pipeline.
//
// # Обзор
//
// Секрет никогда не живёт дольше блока, который его запросил. Manager
// разрешает credential id через Store и возвращает Scope — набор Binding,
// валидных только до Close. При выходе из scope значения затираются
// (байты обнуляются, временные файлы удаляются), а не просто теряют ссылки.
//
// # Формы credentials
//
//   - token             — одно секретное значение
//   - username_password — пара логин/пароль
//   - file              — путь к файлу конфигурации (или содержимое,
//     которое на время scope материализуется во временный файл)
//
// Если action ожидает одну форму, а в хранилище лежит другая, Enter
// возвращает ErrCredentialTypeMismatch.
//
// # Stack
//
// Вложенные scopes образуют явный стек (push/pop). Окружение стека —
// слияние фреймов снизу вверх, внутренний фрейм выигрывает. Освобождение
// идёт строго в обратном порядке захвата.
//
//	scope, err := mgr.Enter(ctx, secrets.Request{ID: "registry", Kind: secrets.KindUsernamePassword,
//	    UsernameVar: "REG_USER", PasswordVar: "REG_PASS"})
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
// Повторный вход с тем же id всегда заново читает хранилище: между
// scopes ничего не кэшируется.
package secrets
