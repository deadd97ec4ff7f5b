package cv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

var methodModes = map[finder.Method]gocv.TemplateMatchMode{
	finder.SqDiff:       gocv.TmSqdiff,
	finder.SqDiffNormed: gocv.TmSqdiffNormed,
	finder.CCorr:        gocv.TmCcorr,
	finder.CCorrNormed:  gocv.TmCcorrNormed,
	finder.CCoeff:       gocv.TmCcoeff,
	finder.CCoeffNormed: gocv.TmCcoeffNormed,
}

// TemplateMode 返回方法对应的 OpenCV 模式
func TemplateMode(method finder.Method) (gocv.TemplateMatchMode, error) {
	mode, ok := methodModes[method]
	if !ok {
		return 0, fmt.Errorf("未知的匹配方法: %s", method)
	}
	return mode, nil
}

// scoreMap 调用 MatchTemplate 并复制结果矩阵
func scoreMap(source, search gocv.Mat, method finder.Method) (*finder.ScoreMap, error) {
	if err := checkSourceLargerThanSearch(source, search); err != nil {
		return nil, err
	}
	mode, err := TemplateMode(method)
	if err != nil {
		return nil, err
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(source, search, &result, mode, mask)

	data, err := result.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("读取结果矩阵失败: %w", err)
	}
	values := make([]float32, len(data))
	copy(values, data)

	return &finder.ScoreMap{
		Width:    result.Cols(),
		Height:   result.Rows(),
		Values:   values,
		Needle:   finder.Size{Width: search.Cols(), Height: search.Rows()},
		Channels: search.Channels(),
		Method:   method,
	}, nil
}

// checkSourceLargerThanSearch 检查源图像是否大于搜索图像
func checkSourceLargerThanSearch(source, search gocv.Mat) error {
	if source.Rows() < search.Rows() || source.Cols() < search.Cols() {
		return &finder.TemplateTooLargeError{
			HaystackSize: [2]int{source.Cols(), source.Rows()},
			NeedleSize:   [2]int{search.Cols(), search.Rows()},
			Scale:        1,
		}
	}
	return nil
}
