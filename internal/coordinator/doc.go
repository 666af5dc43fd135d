// Package coordinator связывает поток событий с исполнителем.
//
// Координатор подписан на очередь workflow.events через events.Gateway
// и реагирует на терминальные события задач: завершение продвигает
// зависимые задачи, провал переводит workflow в FAILED. Дедупликацию
// событий выполняет шлюз, поэтому обработчики могут считать, что
// каждое событие доезжает до них не более одного раза.
package coordinator
