package errors

import "google.golang.org/grpc/codes"

// DocQA 服务错误码（服务代码 20）。
var (
	ErrInvalidRequest    = define(ServiceDocQA, CategoryRequest, 1, "Invalid request parameters", "Неверные параметры запроса")
	ErrUnsupportedFormat = define(ServiceDocQA, CategoryRequest, 2, "Unsupported document format", "Формат документа не поддерживается")

	ErrNoDocuments = define(ServiceDocQA, CategoryResource, 1, "No documents found", "Документы не найдены")

	ErrReloadInProgress = define(ServiceDocQA, CategoryConflict, 1, "Reload already in progress", "Перезагрузка уже выполняется")

	ErrExtraction         = define(ServiceDocQA, CategoryInternal, 1, "Text extraction failed", "Ошибка извлечения текста")
	ErrEvaluation         = define(ServiceDocQA, CategoryInternal, 3, "Evaluation failed", "Ошибка оценки")
	ErrHistoryUnavailable = define(ServiceDocQA, CategoryInternal, 4, "Conversation history unavailable", "История диалога недоступна")

	ErrIndexWrite      = define(ServiceDocQA, CategoryStorage, 1, "Index write failed", "Ошибка записи индекса")
	ErrIndexCorruption = define(ServiceDocQA, CategoryStorage, 2, "Index is corrupted", "Индекс повреждён", codes.DataLoss)
	ErrIndexRead       = define(ServiceDocQA, CategoryStorage, 3, "Index read failed", "Ошибка чтения индекса")

	// 上游供应商
	ErrEmbeddingProvider = define(ServiceDocQA, CategoryNetwork, 1, "Embedding provider failed", "Ошибка сервиса эмбеддингов")
	ErrGeneration        = define(ServiceDocQA, CategoryNetwork, 2, "Answer generation failed", "Ошибка генерации ответа")
	ErrProviderTimeout   = define(ServiceDocQA, CategoryTimeout, 1, "Provider call timed out", "Превышено время ожидания ответа сервиса")
)
