package logging

import (
	"fmt"
	"sync"
)

// LoggerManager управляет логгерами компонентов и их уровнями
type LoggerManager struct {
	mu        sync.RWMutex
	loggers   map[string]*Logger
	overrides map[string]LogLevel // уровни из конфигурации logging.components
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers:   make(map[string]*Logger),
			overrides: make(map[string]LogLevel),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер для компонента, создавая его при необходимости
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	if logger, exists := lm.loggers[component]; exists {
		lm.mu.RUnlock()
		return logger, nil
	}
	lm.mu.RUnlock()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	// Проверяем еще раз на случай race condition
	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger for %s: %w", component, err)
	}

	if level, ok := lm.overrides[component]; ok {
		logger.minConsoleLevel = level
		logger.minFileLevel = level
	}
	lm.loggers[component] = logger
	return logger, nil
}

// MustGetLogger возвращает логгер или создает fallback при ошибке
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err != nil {
		// Fallback: только консоль
		return &Logger{
			component:       component,
			consoleLogger:   defaultLogger.consoleLogger,
			minConsoleLevel: INFO,
			minFileLevel:    ERROR,
		}
	}
	return logger
}

// CloseAll закрывает все логгеры
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close logger for %s: %w", component, err)
		}
	}

	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// SetLogLevel задаёт уровень компонента. Действует и на уже созданный
// логгер, и на тот, что будет создан позже.
func (lm *LoggerManager) SetLogLevel(component string, level LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.overrides[component] = level
	if logger, exists := lm.loggers[component]; exists {
		logger.minConsoleLevel = level
		logger.minFileLevel = level
	}
}

// Levels текущие уровни созданных логгеров по компонентам
func (lm *LoggerManager) Levels() map[string]string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	out := make(map[string]string, len(lm.loggers))
	for component, logger := range lm.loggers {
		out[component] = logger.minConsoleLevel.String()
	}
	return out
}

// ConfigureComponents применяет уровни из конфигурации. Вызывать при старте,
// до того как компоненты начнут писать.
func ConfigureComponents(levels map[string]LogLevel) {
	lm := GetLoggerManager()
	for component, level := range levels {
		lm.SetLogLevel(component, level)
	}
}

// Удобные функции для получения логгеров
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetNetworkLogger() *Logger {
	return GetComponentLogger("network")
}

func GetServerLogger() *Logger {
	return GetComponentLogger("server")
}

func GetWorldLogger() *Logger {
	return GetComponentLogger("world")
}

func GetMeshLogger() *Logger {
	return GetComponentLogger("mesh")
}
