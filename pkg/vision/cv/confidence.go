package cv

import (
	"image"

	"gocv.io/x/gocv"
)

// verifyConfidence 将源图中的实例按单应性逆变换回模板坐标系，再计算 TM_CCOEFF_NORMED 置信度
// 无法求逆时返回 -1
func verifyConfidence(source, search, H gocv.Mat) float64 {
	inv, ok := homography(H).inverse()
	if !ok {
		return -1
	}
	m := inv.mat()
	defer m.Close()

	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpPerspective(source, &warped, m, image.Point{X: search.Cols(), Y: search.Rows()})
	if warped.Empty() {
		return -1
	}
	return CalCcoeffConfidence(warped, search)
}

// CalCcoeffConfidence 对两张同大小图像计算 TM_CCOEFF_NORMED 置信度
func CalCcoeffConfidence(imgSource, imgSearch gocv.Mat) float64 {
	srcGray := ToGray(imgSource)
	searchGray := ToGray(imgSearch)
	defer srcGray.Close()
	defer searchGray.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(srcGray, searchGray, &result, gocv.TmCcoeffNormed, mask)

	_, maxVal, _, _ := gocv.MinMaxLoc(result)
	return float64(maxVal)
}
