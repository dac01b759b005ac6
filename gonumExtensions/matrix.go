package gonumExtensions

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NANORINF checks if there are any NAN or INF in matrix
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// ColumnNorms returns the Euclidean norm of every column of matrix
func ColumnNorms(matrix mat.Matrix) []float64 {
	m, n := matrix.Dims()
	res := make([]float64, n)
	col := make([]float64, m)
	for j := 0; j < n; j++ {
		mat.Col(col, j, matrix)
		res[j] = floats.Norm(col, 2)
	}
	return res
}

// RepeatHorizontal returns [matrix, matrix, ...] with count copies side by side
func RepeatHorizontal(matrix mat.Matrix, count int) *mat.Dense {
	if count < 1 {
		panic("gonumExtensions: count must be positive")
	}
	m, n := matrix.Dims()
	res := mat.NewDense(m, n*count, nil)
	for index := 0; index < count; index++ {
		res.Slice(0, m, index*n, (index+1)*n).(*mat.Dense).Copy(matrix)
	}
	return res
}

// Row returns a copy of row i of matrix
func Row(matrix mat.Matrix, i int) []float64 {
	return mat.Row(nil, i, matrix)
}
