package handler

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/LorillaJm/es6-sub000/internal/model"
)

// RegisterValidators 向 gin 的校验引擎注册自定义 binding 标签
//   - capture_method: scan / photo / manual
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin 校验引擎不是 validator/v10")
	}
	return v.RegisterValidation("capture_method", func(fl validator.FieldLevel) bool {
		return model.ValidCaptureMethod(fl.Field().String())
	})
}
